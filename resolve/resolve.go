// Package resolve drives dependency-request satisfaction and the
// linkability fixed point over a registry — the two algorithms that do
// the real work; everything else is bookkeeping around these two passes.
package resolve

import (
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/registry"
)

// Resolver wraps a registry with the two request-satisfaction entry
// points plus the linkability fixed-point algorithm.
type Resolver struct {
	reg *registry.Registry
}

// New builds a Resolver over reg.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// SatisfyPass runs the bulk resolver pass; see registry.Registry.SatisfyPass
// for the locking and ordering contract.
func (r *Resolver) SatisfyPass() bool {
	return r.reg.SatisfyPass()
}

// TrySatisfyOne runs the incremental resolver pass for a single freshly
// inserted candidate; see registry.Registry.TrySatisfyOne.
func (r *Resolver) TrySatisfyOne(candidate *registry.Record) {
	r.reg.TrySatisfyOne(candidate)
}

// IsLinkable implements the linkability fixed-point DFS. It write-locks the
// starting record's linkability slot for the duration, explores
// resolved_deps and resolved_parent, and on success marks every record
// discovered along the way linkable — including cycle members, since a
// cycle is fine as long as every member is resolved.
func (r *Resolver) IsLinkable(rec *registry.Record) bool {
	if rec.Linkable() {
		return true
	}

	rec.LockLinkability()
	defer rec.UnlockLinkability()

	// Re-check under the lock: another goroutine may have completed the
	// DFS for this record while we waited. Uses the lock-free accessor
	// since we already hold the (non-reentrant) linkability lock.
	if rec.LinkableLocked() {
		return true
	}

	visited := make(map[identity.ID]*registry.Record)
	if !dfsLinkable(rec, rec.ID(), visited) {
		return false
	}
	root := rec.ID()
	for _, v := range visited {
		if v.ID() == root {
			// rec's own linkability lock is still held by this call
			// (deferred Unlock above); MarkLinkable would deadlock.
			v.MarkLinkableLocked()
			continue
		}
		v.MarkLinkable()
	}
	return true
}

// dfsLinkable walks resolved_deps (which also carries the resolved_parent
// edge, since BindParent reuses-or-inserts the matching resolved_deps
// entry) from rec.
//
// root is the identity of the record whose linkability lock the caller
// already holds for the duration of the whole algorithm. A cycle can walk
// back to root before the DFS has finished, so the Linkable() fast path —
// which takes that same lock — is skipped for root specifically; its
// IsResolved() check alone (a different lock) is enough to decide whether
// to keep exploring, and the visited-set check below stops the recursion
// once root is seen a second time.
func dfsLinkable(rec *registry.Record, root identity.ID, visited map[identity.ID]*registry.Record) bool {
	if rec.ID() != root && rec.Linkable() {
		return true
	}
	if !rec.IsResolved() {
		return false
	}
	if _, seen := visited[rec.ID()]; seen {
		return true
	}
	visited[rec.ID()] = rec
	for _, dep := range rec.ResolvedDeps() {
		if !dfsLinkable(dep, root, visited) {
			return false
		}
	}
	return true
}
