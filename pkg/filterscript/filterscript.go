// Package filterscript runs user-provided Starlark scripts that select
// which extracted variables are kept in the output. A script defines a
// function keep(v) returning a truth value; v carries the entry's name,
// address, kind and size.
package filterscript

import (
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/varscout/varscout/pkg/extract"
	"github.com/varscout/varscout/pkg/logflags"
)

const keepFunc = "keep"

func init() {
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

// Filter is a loaded filter script.
type Filter struct {
	thread *starlark.Thread
	keep   starlark.Callable
	log    logflags.Logger
}

// Load compiles and executes the script at path and binds its keep
// function.
func Load(path string) (*Filter, error) {
	log := logflags.ScriptLogger()
	thread := &starlark.Thread{
		Name: "filter",
		Print: func(_ *starlark.Thread, msg string) {
			log.Infof("%s", msg)
		},
	}
	globals, err := starlark.ExecFile(thread, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("filter script: %v", err)
	}
	fn, ok := globals[keepFunc].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("filter script %s does not define %s(v)", path, keepFunc)
	}
	return &Filter{thread: thread, keep: fn, log: log}, nil
}

// Keep reports whether the script keeps the entry. A script that fails at
// runtime keeps the entry and the failure is logged.
func (f *Filter) Keep(e extract.Entry) bool {
	v, err := starlark.Call(f.thread, f.keep, starlark.Tuple{entryValue(e)}, nil)
	if err != nil {
		f.log.Errorf("filter script: %v", err)
		return true
	}
	return bool(v.Truth())
}

// Apply filters entries through the script, preserving order.
func (f *Filter) Apply(entries []extract.Entry) []extract.Entry {
	kept := entries[:0]
	for _, e := range entries {
		if f.Keep(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

func entryValue(e extract.Entry) starlark.Value {
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"name":    starlark.String(e.Name),
		"address": starlark.String(e.Address),
		"kind":    starlark.String(e.Kind.String()),
		"size":    starlark.MakeInt(e.Kind.Size()),
	})
}
