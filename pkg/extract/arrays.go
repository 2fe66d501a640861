package extract

import (
	"strconv"
	"strings"
)

// maxArrayElements caps how many entries a single array span may expand
// into.
const maxArrayElements = 10000

var (
	toMarkers   = strings.NewReplacer("[", "{", "]", "}")
	fromMarkers = strings.NewReplacer("{", "[", "}", "]")
)

// expandArrayEntries materializes every element of each indexed span in
// the group's variable names. Parsing left one canonical entry per span
// carrying its highest index, so expansion fills in the siblings below
// it. Unprocessed spans are held as brace markers; appended siblings are
// revisited, which multiplies nested spans out.
func expandArrayEntries(groups []*fileGroup) {
	for _, g := range groups {
		for _, v := range g.vars {
			if !v.expanded && strings.Contains(v.Name, "[") {
				v.Name = toMarkers.Replace(v.Name)
			}
		}
		for i := 0; i < len(g.vars); i++ {
			v := g.vars[i]
			if v.expanded {
				continue
			}
			for {
				open := strings.IndexByte(v.Name, '{')
				if open < 0 {
					break
				}
				closing := strings.IndexByte(v.Name, '}')
				if closing < open {
					v.Name = fromMarkers.Replace(v.Name)
					break
				}
				idx, err := strconv.Atoi(v.Name[open+1 : closing])
				if err != nil || idx < 0 {
					v.Name = v.Name[:open] + "[" + v.Name[open+1:closing] + "]" + v.Name[closing+1:]
					continue
				}
				if idx > maxArrayElements-1 {
					idx = maxArrayElements - 1
				}
				prefix, suffix := v.Name[:open], v.Name[closing+1:]
				v.Name = prefix + "[" + strconv.Itoa(idx) + "]" + suffix
				for j := 0; j < idx; j++ {
					g.vars = append(g.vars, &Variable{
						Name:  prefix + "[" + strconv.Itoa(j) + "]" + suffix,
						state: v.state,
						typ:   v.typ,
						base:  v.base,
						hier:  v.hier,
					})
				}
			}
		}
	}
}
