package registry

import (
	"testing"
	"time"

	"github.com/latticeforge/pluginloader/descriptor"
)

func mustDescriptor(t *testing.T, raw descriptor.RawMetadata) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.FromRawMetadata(raw)
	if err != nil {
		t.Fatalf("FromRawMetadata: %v", err)
	}
	return d
}

func noopCtor(args []any) (any, error) { return "instance", nil }

func TestInsertRejectsDuplicateID(t *testing.T) {
	reg := New(nil)
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	if _, err := reg.Insert(d, noopCtor); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if _, err := reg.Insert(d, noopCtor); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
}

func TestInsertEmitsPendingRequestsForDependenciesAndParent(t *testing.T) {
	reg := New(nil)
	d := mustDescriptor(t, descriptor.RawMetadata{
		ID:       "child",
		Version:  "1.0",
		ParentID: "parent",
		Dependencies: []descriptor.RawDependency{
			{ID: "dep1", Version: "[any]"},
		},
	})
	if _, err := reg.Insert(d, noopCtor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.PendingLen() != 2 {
		t.Fatalf("PendingLen() = %d, want 2 (one dependency + one parent)", reg.PendingLen())
	}
}

func TestSatisfyPassBindsDependencyAndReportsDone(t *testing.T) {
	reg := New(nil)
	dep := mustDescriptor(t, descriptor.RawMetadata{ID: "dep", Version: "1.0"})
	child := mustDescriptor(t, descriptor.RawMetadata{
		ID:      "child",
		Version: "1.0",
		Dependencies: []descriptor.RawDependency{
			{ID: "dep", Version: "1.0"},
		},
	})

	if _, err := reg.Insert(dep, noopCtor); err != nil {
		t.Fatalf("insert dep: %v", err)
	}
	if _, err := reg.Insert(child, noopCtor); err != nil {
		t.Fatalf("insert child: %v", err)
	}

	if !reg.SatisfyPass() {
		t.Fatal("expected SatisfyPass to report all requests satisfied")
	}
	if reg.PendingLen() != 0 {
		t.Fatalf("PendingLen() = %d, want 0", reg.PendingLen())
	}

	childRec, _ := reg.Lookup("child")
	deps := childRec.ResolvedDeps()
	if len(deps) != 1 || deps[0].ID() != "dep" {
		t.Fatalf("expected child to resolve dep, got %+v", deps)
	}
}

func TestSatisfyPassLeavesUnresolvableRequestsPending(t *testing.T) {
	reg := New(nil)
	child := mustDescriptor(t, descriptor.RawMetadata{
		ID:      "child",
		Version: "1.0",
		Dependencies: []descriptor.RawDependency{
			{ID: "missing", Version: "[any]"},
		},
	})
	if _, err := reg.Insert(child, noopCtor); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if reg.SatisfyPass() {
		t.Fatal("expected SatisfyPass to report unsatisfied requests remain")
	}
	if reg.PendingLen() != 1 {
		t.Fatalf("PendingLen() = %d, want 1", reg.PendingLen())
	}
}

func TestSatisfyPassTieBreaksByInsertionOrder(t *testing.T) {
	reg := New(nil)
	first := mustDescriptor(t, descriptor.RawMetadata{ID: "dep", Version: "1.0"})
	second := mustDescriptor(t, descriptor.RawMetadata{ID: "dep", Version: "2.0"})
	_, err := reg.Insert(first, noopCtor)
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	// A second record with the same ID is rejected by the duplicate check,
	// so of two same-id candidates that both satisfy an "any version"
	// request, the first inserted is the one bound.
	if _, err := reg.Insert(second, noopCtor); err == nil {
		t.Fatal("expected the second same-id insert to fail")
	}
	child := mustDescriptor(t, descriptor.RawMetadata{
		ID:      "child",
		Version: "1.0",
		Dependencies: []descriptor.RawDependency{
			{ID: "dep", Version: "[any]"},
		},
	})
	if _, err := reg.Insert(child, noopCtor); err != nil {
		t.Fatalf("insert child: %v", err)
	}
	reg.SatisfyPass()
	childRec, _ := reg.Lookup("child")
	deps := childRec.ResolvedDeps()
	if len(deps) != 1 || deps[0].Version() != "1.0" {
		t.Fatalf("expected dep bound to the first inserted 1.0, got %+v", deps)
	}
}

func TestBlockPredicateRejectsOwnNamespace(t *testing.T) {
	reg := New(DefaultBlockPredicate("internal"))
	if !reg.IsBlocked("internal.foo") {
		t.Fatal("expected internal.foo to be blocked")
	}
	if reg.IsBlocked("other.foo") {
		t.Fatal("expected other.foo to not be blocked")
	}
}

func TestRemoveReturnsUnsupported(t *testing.T) {
	reg := New(nil)
	if err := reg.Remove("anything"); err == nil {
		t.Fatal("expected Remove to return an error")
	}
}

func TestWaitForChangeWakesOnInsert(t *testing.T) {
	reg := New(nil)
	since := reg.Generation()

	done := make(chan uint64, 1)
	go func() {
		done <- reg.WaitForChange(since, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	d := mustDescriptor(t, descriptor.RawMetadata{ID: "a", Version: "1.0"})
	if _, err := reg.Insert(d, noopCtor); err != nil {
		t.Fatalf("insert: %v", err)
	}

	select {
	case gen := <-done:
		if gen <= since {
			t.Fatalf("WaitForChange returned generation %d, want > %d", gen, since)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not wake up after Insert")
	}
}

func TestWaitForChangeWakesOnStop(t *testing.T) {
	reg := New(nil)
	stop := make(chan struct{})
	done := make(chan uint64, 1)
	go func() {
		done <- reg.WaitForChange(reg.Generation(), stop)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not wake up after stop was closed")
	}
}
