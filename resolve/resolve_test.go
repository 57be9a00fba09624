package resolve

import (
	"testing"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/registry"
)

func mustDescriptor(t *testing.T, raw descriptor.RawMetadata) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.FromRawMetadata(raw)
	if err != nil {
		t.Fatalf("FromRawMetadata: %v", err)
	}
	return d
}

func noopCtor(args []any) (any, error) { return nil, nil }

func TestIsLinkableSimpleChain(t *testing.T) {
	reg := registry.New(nil)
	r := New(reg)

	leaf := mustDescriptor(t, descriptor.RawMetadata{ID: "leaf", Version: "1.0"})
	mid := mustDescriptor(t, descriptor.RawMetadata{
		ID: "mid", Version: "1.0",
		Dependencies: []descriptor.RawDependency{{ID: "leaf", Version: "[any]"}},
	})
	if _, err := reg.Insert(leaf, noopCtor); err != nil {
		t.Fatalf("insert leaf: %v", err)
	}
	midRec, err := reg.Insert(mid, noopCtor)
	if err != nil {
		t.Fatalf("insert mid: %v", err)
	}
	if !r.SatisfyPass() {
		t.Fatal("expected all requests to be satisfied")
	}

	if !r.IsLinkable(midRec) {
		t.Fatal("expected mid to be linkable once its dependency is resolved")
	}
	leafRec, _ := reg.Lookup("leaf")
	if !leafRec.Linkable() {
		t.Fatal("expected leaf to be marked linkable as a side effect of mid's DFS")
	}
}

func TestIsLinkableFalseWhenDependencyUnresolved(t *testing.T) {
	reg := registry.New(nil)
	r := New(reg)

	mid := mustDescriptor(t, descriptor.RawMetadata{
		ID: "mid", Version: "1.0",
		Dependencies: []descriptor.RawDependency{{ID: "missing", Version: "[any]"}},
	})
	midRec, err := reg.Insert(mid, noopCtor)
	if err != nil {
		t.Fatalf("insert mid: %v", err)
	}
	r.SatisfyPass()

	if r.IsLinkable(midRec) {
		t.Fatal("expected mid to not be linkable with an unresolved dependency")
	}
	if midRec.Linkable() {
		t.Fatal("expected linkable flag to remain false")
	}
}

func TestIsLinkableHandlesMutualCycle(t *testing.T) {
	reg := registry.New(nil)
	r := New(reg)

	a := mustDescriptor(t, descriptor.RawMetadata{
		ID: "a", Version: "1.0",
		Dependencies: []descriptor.RawDependency{{ID: "b", Version: "[any]"}},
	})
	b := mustDescriptor(t, descriptor.RawMetadata{
		ID: "b", Version: "1.0",
		Dependencies: []descriptor.RawDependency{{ID: "a", Version: "[any]"}},
	})
	aRec, err := reg.Insert(a, noopCtor)
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	bRec, err := reg.Insert(b, noopCtor)
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}

	if !r.SatisfyPass() {
		t.Fatal("expected mutual cycle requests to satisfy each other")
	}

	if !r.IsLinkable(aRec) {
		t.Fatal("expected a mutually-resolved cycle to be linkable")
	}
	if !bRec.Linkable() {
		t.Fatal("expected b to be marked linkable as part of a's cycle DFS")
	}
}

func TestIsLinkableShortCircuitsWhenAlreadyLinkable(t *testing.T) {
	reg := registry.New(nil)
	r := New(reg)
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	rec, err := reg.Insert(d, noopCtor)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	r.SatisfyPass()
	if !r.IsLinkable(rec) {
		t.Fatal("expected first call to establish linkability")
	}
	if !r.IsLinkable(rec) {
		t.Fatal("expected second call to short-circuit to true")
	}
}
