// Package cdecl extracts variable identifiers from the C-like declaration
// lists a debugger prints, both in symbol listings and in rendered
// aggregate type bodies.
package cdecl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnbalanced = errors.New("unbalanced braces")

// ParseBlock scans a block of semicolon-terminated declarations and returns
// the identifier of every variable-like declarator found, prefixed with root
// when root is non-empty. Brace-enclosed bodies are treated as opaque and do
// not contribute identifiers of their own.
//
// Array declarators yield the identifier of element zero, or of the last
// element when expandArrays is set. Declarators that do not name a single
// addressable variable (functions, bitfields, multi-dimensional arrays) are
// returned in skipped together with the reason they were rejected.
func ParseBlock(block, root string, expandArrays bool) (ids []string, skipped []string) {
	rest := block
	for {
		decl, tail, err := nextDecl(rest)
		if err != nil {
			if errors.Is(err, errUnbalanced) {
				skipped = append(skipped, "unbalanced braces: "+trunc(rest))
			}
			break
		}
		rest = tail
		name, reason := parseDeclarator(decl, expandArrays)
		if reason != "" {
			skipped = append(skipped, reason+": "+trunc(decl))
			continue
		}
		if name == "" {
			continue
		}
		if root != "" {
			name = root + "." + name
		}
		ids = append(ids, name)
	}
	return ids, skipped
}

// nextDecl splits the first semicolon-terminated declaration off s. Brace
// bodies are skipped as opaque units and dropped from the returned text.
// Text after the last semicolon is ignored.
func nextDecl(s string) (decl, rest string, err error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		switch s[i] {
		case '{':
			close := MatchBrace(s, i)
			if close < 0 {
				return "", "", errUnbalanced
			}
			b.WriteByte(' ')
			i = close + 1
		case ';':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return "", "", errors.New("no declaration")
}

// parseDeclarator extracts the declared identifier from a single
// declaration with any brace body already removed. An empty name with an
// empty reason means the declaration held nothing to extract.
func parseDeclarator(decl string, expandArrays bool) (name, reason string) {
	s := strings.TrimSpace(decl)
	s = stripLineMarker(s)
	s = stripAccessLabels(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}

	if strings.Contains(s, " : ") {
		return "", "bitfield"
	}

	if i := strings.Index(s, "("); i >= 0 {
		p := strings.Index(s, "(*")
		if p < 0 {
			return "", "function declaration"
		}
		inner := s[p+2:]
		q := strings.Index(inner, ")")
		if q < 0 {
			return "", "malformed function pointer"
		}
		inner = strings.TrimLeft(strings.TrimSpace(inner[:q]), "*")
		if inner == "" {
			return "", "malformed function pointer"
		}
		if strings.Contains(inner, "[") {
			return arrayName(inner, expandArrays)
		}
		return inner, ""
	}

	if strings.Contains(s, "[") {
		return arrayName(s, expandArrays)
	}

	if star := strings.LastIndex(s, "*"); star >= 0 {
		fields := strings.Fields(s[star+1:])
		for len(fields) > 0 && isQualifier(fields[0]) {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			return "", "pointer without identifier"
		}
		return fields[len(fields)-1], ""
	}

	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", ""
	}
	return fields[len(fields)-1], ""
}

// arrayName extracts the identifier of an array declarator and renders it
// as an element access, element zero by default or the last element when
// expandArrays is set.
func arrayName(s string, expandArrays bool) (name, reason string) {
	open := strings.Index(s, "[")
	if strings.Contains(s[open+1:], "[") {
		return "", "multi-dimensional array"
	}
	close := strings.Index(s[open:], "]")
	if close < 0 {
		return "", "malformed array"
	}
	size, err := strconv.Atoi(strings.TrimSpace(s[open+1 : open+close]))
	if err != nil {
		return "", "array without fixed size"
	}

	fields := strings.Fields(s[:open])
	if len(fields) == 0 {
		return "", "array without identifier"
	}
	ident := strings.TrimLeft(fields[len(fields)-1], "*")
	if ident == "" {
		return "", "array without identifier"
	}
	if strings.ContainsAny(ident, "()") {
		return "", "unsupported declarator"
	}

	idx := 0
	if expandArrays && size > 0 {
		idx = size - 1
	}
	return fmt.Sprintf("%s[%d]", ident, idx), ""
}

// stripLineMarker removes the "<line>:" prefix symbol listings carry in
// front of each declaration.
func stripLineMarker(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && s[i] == ':' {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func stripAccessLabels(s string) string {
	for _, label := range []string{"public:", "protected:", "private:"} {
		s = strings.ReplaceAll(s, label, "")
	}
	return s
}

func isQualifier(tok string) bool {
	switch tok {
	case "const", "volatile", "restrict", "__restrict", "__restrict__":
		return true
	}
	return false
}

// MatchBrace returns the index of the '}' closing the '{' at open in s, or
// -1 if the braces are unbalanced. open must point at a '{'.
func MatchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var qualifierPrefixes = []string{"extern ", "static ", "volatile ", "const "}

// StripQualifiers removes leading storage qualifiers from a type spelling,
// in any order.
func StripQualifiers(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, q := range qualifierPrefixes {
			if strings.HasPrefix(s, q) {
				s = strings.TrimSpace(s[len(q):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// ClassHeader splits the header of a rendered aggregate type, the text
// before the opening brace, into the type name and its inheritance clause.
// A leading aggregate keyword is dropped, the clause is empty when the
// type has no bases.
func ClassHeader(header string) (name, clause string) {
	header = strings.TrimSpace(header)
	for _, kw := range []string{"class", "struct", "union"} {
		if header == kw {
			return "", ""
		}
		if strings.HasPrefix(header, kw+" ") {
			header = strings.TrimSpace(header[len(kw)+1:])
			break
		}
	}
	if i := strings.Index(header, " : "); i >= 0 {
		return strings.TrimSpace(header[:i]), strings.TrimSpace(header[i+3:])
	}
	return header, ""
}

// BaseClasses parses the inheritance clause of a class header and returns
// the named base classes with access and virtual keywords removed.
// Template arguments are preserved, commas inside them do not split.
func BaseClasses(clause string) []string {
	var bases []string
	for _, part := range splitTopLevel(clause) {
		fields := strings.Fields(part)
		for len(fields) > 0 && isInheritKeyword(fields[0]) {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		bases = append(bases, strings.Join(fields, " "))
	}
	return bases
}

// splitTopLevel splits on commas that are not nested inside template
// argument lists.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

func isInheritKeyword(tok string) bool {
	switch tok {
	case "public", "protected", "private", "virtual":
		return true
	}
	return false
}

func trunc(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
