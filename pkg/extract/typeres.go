package extract

import (
	"strings"

	"github.com/varscout/varscout/pkg/cdecl"
)

// resolveTypeReply consumes one ptype reply. Scalar replies settle the
// variable in place. Aggregate replies with a visible body retire the
// variable and stage one entry per member (and per base class) for the
// next pass.
func (s *session) resolveTypeReply(payload string, v *Variable, fileIdx int) {
	text, ok := typePayload(payload)
	if !ok {
		s.decodeFailure("type", v.Name, payload)
		s.settle(v, "")
		return
	}
	text = strings.TrimSpace(text)
	stripped := cdecl.StripQualifiers(text)

	kw := aggregateKeyword(stripped)
	if kw == "" {
		s.settle(v, text)
		return
	}

	open := strings.IndexByte(stripped, '{')
	if open < 0 {
		// Opaque aggregate, no body to expand into.
		s.settle(v, text)
		return
	}
	closing := cdecl.MatchBrace(stripped, open)
	if closing < 0 {
		s.decodeFailure("type", v.Name, payload)
		s.settle(v, "")
		return
	}
	if strings.Contains(stripped[closing+1:], "*") {
		// Pointer to aggregate, sized like any other pointer.
		s.settle(v, stripped)
		return
	}

	name, clause := cdecl.ClassHeader(stripped[:open])

	hier := v.hier
	if name != "" {
		if hierContains(hier, name) {
			s.decodeLog.Debugf("inheritance cycle at %s via %s", v.Name, name)
			s.settle(v, "")
			return
		}
		hier = extendHier(hier, name)
	}

	members, skipped := s.parseBody(stripped[open+1 : closing])
	s.noteSkipped(skipped)

	staged := s.pending[fileIdx]
	for _, m := range members {
		staged = append(staged, &Variable{
			Name: v.Name + "." + m,
			hier: hier,
		})
	}
	if clause != "" {
		for _, b := range cdecl.BaseClasses(clause) {
			staged = append(staged, &Variable{
				Name:  v.Name,
				state: typePendingBase,
				base:  b,
				hier:  hier,
			})
		}
	}
	if len(staged) > len(s.pending[fileIdx]) {
		s.discovered = true
	}
	s.pending[fileIdx] = staged
	v.expanded = true
}

func (s *session) settle(v *Variable, typ string) {
	v.state = typeResolved
	v.typ = typ
}

// parseBody splits an aggregate body into member declarator names. Bodies
// repeat across variables of the same type, so parses are cached. Skip
// diagnostics are reported on the first parse only.
func (s *session) parseBody(body string) (members, skipped []string) {
	if cached, ok := s.bodyCache.Get(body); ok {
		return cached.([]string), nil
	}
	members, skipped = cdecl.ParseBlock(body, "", s.expandArrays)
	s.bodyCache.Add(body, members)
	return members, skipped
}

func aggregateKeyword(t string) string {
	for _, kw := range []string{"struct", "union", "class"} {
		if t == kw || strings.HasPrefix(t, kw+" ") || strings.HasPrefix(t, kw+"{") {
			return kw
		}
	}
	return ""
}

// hierContains reports whether name already appears in the dot-joined
// chain of aggregate names leading to the current entry.
func hierContains(hier, name string) bool {
	for _, h := range strings.Split(hier, ".") {
		if h == name {
			return true
		}
	}
	return false
}

func extendHier(hier, name string) string {
	if hier == "" {
		return name
	}
	return hier + "." + name
}
