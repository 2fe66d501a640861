package extract

import (
	"strings"

	"github.com/varscout/varscout/pkg/cdecl"
	"github.com/varscout/varscout/pkg/primtype"
)

type typeState uint8

const (
	typeUnresolved typeState = iota
	typeResolved
	typePendingBase
)

// Variable tracks one identifier through a session, from its discovery in
// the symbol listing to its final classified kind and address.
type Variable struct {
	Name string

	state typeState
	typ   string // leaf type spelling, valid when state is typeResolved
	base  string // base class to query, valid when state is typePendingBase

	// hier is the chain of class names expanded to reach this entry. A
	// class name recurring in its own chain means an inheritance cycle.
	hier string

	Kind primtype.Kind
	Addr uint64

	expanded bool // replaced by member entries, dropped at merge
	sizeDone bool
	addrDone bool
	addrSet  bool
}

func (v *Variable) needsType() bool {
	return !v.expanded && v.state != typeResolved
}

func (v *Variable) needsSize() bool { return !v.sizeDone }

func (v *Variable) needsAddr() bool { return !v.addrDone }

// queryExpr is the expression whose type describes this entry: the
// identifier itself or, while a base class is pending, the bare class name.
func (v *Variable) queryExpr() string {
	if v.state == typePendingBase {
		return v.base
	}
	return v.Name
}

func (v *Variable) typeText() string {
	if v.state == typeResolved {
		return v.typ
	}
	return ""
}

// fileGroup holds the variables declared in one source file, in listing
// order.
type fileGroup struct {
	file string
	vars []*Variable
}

const (
	fileLinePrefix   = "File "
	nonDebuggingMark = "Non-debugging symbols:"
)

// parseListing splits a symbol listing reply into per-file groups of
// variable entries. Declarations before the first file header and
// everything from the non-debugging symbols marker on are ignored.
func parseListing(payload string, expandArrays bool) (groups []*fileGroup, skipped []string) {
	type rawGroup struct {
		file  string
		block strings.Builder
	}
	var raws []*rawGroup
	for _, line := range strings.Split(payload, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == nonDebuggingMark {
			break
		}
		if strings.HasPrefix(trimmed, fileLinePrefix) && strings.HasSuffix(trimmed, ":") {
			raws = append(raws, &rawGroup{
				file: strings.TrimSuffix(trimmed[len(fileLinePrefix):], ":"),
			})
			continue
		}
		if len(raws) == 0 {
			continue
		}
		b := &raws[len(raws)-1].block
		b.WriteString(line)
		b.WriteByte('\n')
	}

	for _, r := range raws {
		ids, sk := cdecl.ParseBlock(r.block.String(), "", expandArrays)
		skipped = append(skipped, sk...)
		g := &fileGroup{file: r.file}
		for _, id := range ids {
			g.vars = append(g.vars, &Variable{Name: id})
		}
		groups = append(groups, g)
	}
	return groups, skipped
}
