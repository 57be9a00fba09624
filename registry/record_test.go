package registry

import (
	"errors"
	"testing"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
)

func TestConstructRejectsUnlinkable(t *testing.T) {
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	rec := newRecord(d, noopCtor)
	if _, err := rec.Construct(nil); err == nil {
		t.Fatal("expected Construct to reject an unlinkable record")
	}
}

func TestConstructIsIdempotent(t *testing.T) {
	calls := 0
	ctor := func(args []any) (any, error) {
		calls++
		return calls, nil
	}
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	rec := newRecord(d, ctor)
	rec.MarkLinkable()

	first, err := rec.Construct(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := rec.Construct(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second || calls != 1 {
		t.Fatalf("expected Construct to invoke the constructor exactly once, got calls=%d", calls)
	}
}

func TestConstructWrapsCtorFailure(t *testing.T) {
	wantErr := errors.New("boom")
	ctor := func(args []any) (any, error) { return nil, wantErr }
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	rec := newRecord(d, ctor)
	rec.MarkLinkable()

	_, err := rec.Construct(nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error chain to include %v, got %v", wantErr, err)
	}
}

func TestIsResolvedRequiresParentWhenDeclared(t *testing.T) {
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "child", Version: "1.0", ParentID: "parent"})
	rec := newRecord(d, noopCtor)
	if rec.IsResolved() {
		t.Fatal("expected unresolved record with an unbound declared parent")
	}

	parentDesc := mustDescriptor(t, descriptor.RawMetadata{ID: "parent", Version: "1.0"})
	parentRec := newRecord(parentDesc, noopCtor)
	rec.BindParent(parentRec)
	if !rec.IsResolved() {
		t.Fatal("expected record to be resolved once its parent is bound")
	}
}

func TestIsResolvedRequiresAllRequiredDeps(t *testing.T) {
	f := false
	d := mustDescriptor(t, descriptor.RawMetadata{
		ID:      "child",
		Version: "1.0",
		Dependencies: []descriptor.RawDependency{
			{ID: "required-dep", Version: "[any]"},
			{ID: "optional-dep", Version: "[any]", Required: &f},
		},
	})
	rec := newRecord(d, noopCtor)
	if rec.IsResolved() {
		t.Fatal("expected unresolved record with a missing required dependency")
	}

	depDesc := mustDescriptor(t, descriptor.RawMetadata{ID: "required-dep", Version: "1.0"})
	depRec := newRecord(depDesc, noopCtor)
	rec.BindDependency("required-dep", depRec, identity.Any())
	if !rec.IsResolved() {
		t.Fatal("expected record to be resolved once its required dependency is bound; optional deps should not block")
	}
}

func TestBindDependencyReportsAlreadyBoundAndMatch(t *testing.T) {
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "child", Version: "1.0"})
	rec := newRecord(d, noopCtor)
	depDesc := mustDescriptor(t, descriptor.RawMetadata{ID: "dep", Version: "1.0"})
	depRec := newRecord(depDesc, noopCtor)

	bound, alreadyBound, _ := rec.BindDependency("dep", depRec, identity.Any())
	if !bound || alreadyBound {
		t.Fatalf("expected fresh bind, got bound=%v alreadyBound=%v", bound, alreadyBound)
	}

	bound, alreadyBound, existingMatches := rec.BindDependency("dep", depRec, identity.Exact("1.0"))
	if bound || !alreadyBound || !existingMatches {
		t.Fatalf("expected already-bound-and-matching on rebind, got bound=%v alreadyBound=%v existingMatches=%v", bound, alreadyBound, existingMatches)
	}
}

func TestBindParentReusesResolvedDepsEntry(t *testing.T) {
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "child", Version: "1.0", ParentID: "parent"})
	rec := newRecord(d, noopCtor)
	parentDesc := mustDescriptor(t, descriptor.RawMetadata{ID: "parent", Version: "1.0"})
	parentRec := newRecord(parentDesc, noopCtor)
	rec.BindDependency("parent", parentRec, identity.Any())

	if !rec.BindParent(parentRec) {
		t.Fatal("expected first BindParent to succeed")
	}
	if rec.BindParent(parentRec) {
		t.Fatal("expected second BindParent to fail, parent already bound")
	}
	deps := rec.ResolvedDeps()
	if len(deps) != 1 || deps[0].ID() != "parent" {
		t.Fatalf("expected resolved_deps to contain the parent entry, got %+v", deps)
	}
}

func TestActivatorProgressResumesAfterFailure(t *testing.T) {
	d := mustDescriptor(t, descriptor.RawMetadata{
		ID:      "a",
		Version: "1.0",
		Activators: []descriptor.RawHook{
			{Priority: 1, Handle: "h0"},
			{Priority: 2, Handle: "h1"},
		},
	})
	rec := newRecord(d, noopCtor)

	next, hooks := rec.ActivatorProgress()
	if next != 0 || len(hooks) != 2 {
		t.Fatalf("expected fresh progress (0, 2 hooks), got (%d, %d)", next, len(hooks))
	}

	rec.AdvanceActivators(1, errors.New("h1 failed"))
	next, _ = rec.ActivatorProgress()
	if next != 1 {
		t.Fatalf("expected resumed index 1, got %d", next)
	}

	rec.AdvanceActivators(2, nil)
	next, _ = rec.ActivatorProgress()
	if next != 2 {
		t.Fatalf("expected fully advanced index 2, got %d", next)
	}
}
