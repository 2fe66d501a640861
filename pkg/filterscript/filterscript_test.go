package filterscript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/varscout/varscout/pkg/extract"
	"github.com/varscout/varscout/pkg/primtype"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.star")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestFilterKeep(t *testing.T) {
	f, err := Load(writeScript(t, `
def keep(v):
    return v.kind.startswith("int")
`))
	require.NoError(t, err)

	require.True(t, f.Keep(extract.Entry{Name: "counter", Kind: primtype.KindInt32}))
	require.False(t, f.Keep(extract.Entry{Name: "mode", Kind: primtype.KindUint8}))
}

func TestFilterFields(t *testing.T) {
	f, err := Load(writeScript(t, `
def keep(v):
    return v.name == "cfg.limit" and v.address == "0x20000032" and v.size == 2
`))
	require.NoError(t, err)

	e := extract.Entry{Name: "cfg.limit", Address: "0x20000032", Kind: primtype.KindInt16}
	require.True(t, f.Keep(e))
	require.False(t, f.Keep(extract.Entry{Name: "other", Kind: primtype.KindInt16}))
}

func TestFilterApply(t *testing.T) {
	f, err := Load(writeScript(t, `
def keep(v):
    return not v.name.startswith("internal")
`))
	require.NoError(t, err)

	entries := []extract.Entry{
		{Name: "internal_state", Kind: primtype.KindUint8},
		{Name: "speed", Kind: primtype.KindFloat},
		{Name: "internal_flag", Kind: primtype.KindUint8},
		{Name: "ticks", Kind: primtype.KindUint32},
	}
	kept := f.Apply(entries)
	require.Len(t, kept, 2)
	require.Equal(t, "speed", kept[0].Name)
	require.Equal(t, "ticks", kept[1].Name)
}

func TestFilterRuntimeErrorKeeps(t *testing.T) {
	f, err := Load(writeScript(t, `
def keep(v):
    return v.missing
`))
	require.NoError(t, err)

	require.True(t, f.Keep(extract.Entry{Name: "counter", Kind: primtype.KindInt32}))
}

func TestFilterMissingKeep(t *testing.T) {
	_, err := Load(writeScript(t, `x = 1`))
	require.Error(t, err)
}

func TestFilterSyntaxError(t *testing.T) {
	_, err := Load(writeScript(t, `def keep(v`))
	require.Error(t, err)
}
