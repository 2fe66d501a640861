package extract

import (
	"testing"

	"github.com/varscout/varscout/pkg/primtype"
)

func testSession(t *testing.T, expandArrays bool) *session {
	t.Helper()
	return newSession(New(Config{}), "target", expandArrays, func([]Entry) {}, nil)
}

func TestResolveScalarReply(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "counter"}

	s.resolveTypeReply("type = unsigned int\n", v, 0)

	if v.state != typeResolved || v.typ != "unsigned int" {
		t.Errorf("state = %v typ = %q, want resolved %q", v.state, v.typ, "unsigned int")
	}
	if v.expanded || s.discovered {
		t.Error("scalar reply must not expand")
	}
}

func TestResolveUnrecognizedReply(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "mystery"}

	s.resolveTypeReply("No symbol \"mystery\" in current context.\n", v, 0)

	if v.state != typeResolved || v.typ != "" {
		t.Errorf("state = %v typ = %q, want resolved empty", v.state, v.typ)
	}
	if s.decodeErrs.ErrorOrNil() == nil {
		t.Error("decode failure not recorded")
	}
}

func TestResolveStructExpands(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "cfg"}

	s.resolveTypeReply("type = struct config {\n    unsigned char mode;\n    short limit;\n}\n", v, 0)

	if !v.expanded {
		t.Fatal("aggregate entry not retired")
	}
	if !s.discovered {
		t.Error("staged members did not mark the pass")
	}
	staged := s.pending[0]
	if len(staged) != 2 || staged[0].Name != "cfg.mode" || staged[1].Name != "cfg.limit" {
		t.Fatalf("staged = %v", stagedNames(staged))
	}
	for _, m := range staged {
		if m.hier != "config" {
			t.Errorf("%s hier = %q, want %q", m.Name, m.hier, "config")
		}
	}
}

func TestResolveArrayMember(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "dev"}

	s.resolveTypeReply("type = struct device {\n    char tag[4];\n}\n", v, 0)

	staged := s.pending[0]
	if len(staged) != 1 || staged[0].Name != "dev.tag[0]" {
		t.Fatalf("staged = %v, want [dev.tag[0]]", stagedNames(staged))
	}
}

func TestResolvePointerToAggregate(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "head"}

	s.resolveTypeReply("type = struct list {\n    struct list *next;\n    int payload;\n} *\n", v, 0)

	if v.expanded {
		t.Fatal("pointer to aggregate must stay a leaf")
	}
	if v.state != typeResolved {
		t.Fatalf("state = %v, want resolved", v.state)
	}
	if got := primtype.Classify(v.typeText(), 4); got != primtype.KindUint32 {
		t.Errorf("classified as %v, want %v", got, primtype.KindUint32)
	}
}

func TestResolveOpaqueAggregate(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "when"}

	s.resolveTypeReply("type = struct tm\n", v, 0)

	if v.expanded || v.state != typeResolved || v.typ != "struct tm" {
		t.Errorf("expanded = %v state = %v typ = %q", v.expanded, v.state, v.typ)
	}
}

func TestResolveBaseClassStaged(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "obj"}

	s.resolveTypeReply("type = class Derived : public Base {\n  public:\n    int d;\n}\n", v, 0)

	staged := s.pending[0]
	if len(staged) != 2 {
		t.Fatalf("staged = %v, want member and base", stagedNames(staged))
	}
	if staged[0].Name != "obj.d" {
		t.Errorf("member = %q, want obj.d", staged[0].Name)
	}
	b := staged[1]
	if b.Name != "obj" || b.state != typePendingBase || b.base != "Base" {
		t.Errorf("base entry = %+v", b)
	}
	if b.queryExpr() != "Base" {
		t.Errorf("queryExpr = %q, want Base", b.queryExpr())
	}
}

func TestResolveInheritanceCycle(t *testing.T) {
	s := testSession(t, false)
	v := &Variable{Name: "obj", state: typePendingBase, base: "Derived", hier: "Derived.Base"}

	s.resolveTypeReply("type = class Derived : public Base {\n  public:\n    int d;\n}\n", v, 0)

	if v.expanded {
		t.Fatal("cyclic base must not expand")
	}
	if v.state != typeResolved || v.typ != "" {
		t.Errorf("state = %v typ = %q, want resolved empty", v.state, v.typ)
	}
	if len(s.pending[0]) != 0 {
		t.Errorf("staged = %v, want none", stagedNames(s.pending[0]))
	}
}

func TestResolveBodyCache(t *testing.T) {
	s := testSession(t, false)
	body := "type = struct flags {\n    unsigned int ro : 1;\n    int mode;\n}\n"

	v1 := &Variable{Name: "a"}
	s.resolveTypeReply(body, v1, 0)
	failures := len(s.decodeErrs.Errors)
	if failures == 0 {
		t.Fatal("bitfield member not reported")
	}

	v2 := &Variable{Name: "b"}
	s.resolveTypeReply(body, v2, 0)
	if got := len(s.decodeErrs.Errors); got != failures {
		t.Errorf("cached parse reported again: %d failures, want %d", got, failures)
	}
	if got := stagedNames(s.pending[0]); len(got) != 2 {
		t.Errorf("staged = %v, want a.mode and b.mode", got)
	}
}

func stagedNames(vars []*Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}
