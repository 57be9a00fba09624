// Package registry holds the plugin record arena and the ID-uniqueness map.
// A record keeps direct pointers to the records bound as its parent and
// dependencies, so cyclic dependencies are pointer cycles between records.
package registry

import (
	"sync"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/pluginerr"
	"github.com/latticeforge/pluginloader/request"
)

// ConstructFunc is the construction callback a container loader hands back
// alongside a Descriptor; the core invokes it by reference, never inspects
// its origin.
type ConstructFunc func(args []any) (any, error)

// orderedDeps is an insertion-ordered id -> *Record map: resolved_deps
// iterates in discovery order
type orderedDeps struct {
	order []identity.ID
	m     map[identity.ID]*Record
}

func newOrderedDeps() *orderedDeps {
	return &orderedDeps{m: make(map[identity.ID]*Record)}
}

func (o *orderedDeps) insert(id identity.ID, r *Record) bool {
	if _, exists := o.m[id]; exists {
		return false
	}
	o.order = append(o.order, id)
	o.m[id] = r
	return true
}

func (o *orderedDeps) get(id identity.ID) (*Record, bool) {
	r, ok := o.m[id]
	return r, ok
}

func (o *orderedDeps) values() []*Record {
	out := make([]*Record, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.m[id])
	}
	return out
}

// Record is the mutable per-plugin state: resolved dependencies, resolved
// parent, the sticky linkable flag, construction slot, and active flag.
// Its four independent locks are acquired strictly top-down: parent,
// linkability, dependencies, construction.
type Record struct {
	desc *descriptor.Descriptor
	ctor ConstructFunc

	requiredDepIDs map[identity.ID]struct{} // immutable after construction

	parentMu       sync.Mutex
	resolvedParent *Record

	linkMu   sync.RWMutex
	linkable bool

	depsMu       sync.RWMutex
	resolvedDeps *orderedDeps

	satisfiedMu       sync.Mutex
	satisfiedRequests []*request.Request

	constructMu        sync.Mutex
	instance           any
	constructed        bool
	active             bool
	nextActivatorIdx   int
	nextDeactivatorIdx int
	lastActivationErr  error
}

func newRecord(desc *descriptor.Descriptor, ctor ConstructFunc) *Record {
	return &Record{
		desc:           desc,
		ctor:           ctor,
		requiredDepIDs: desc.RequiredDepIDs(),
		resolvedDeps:   newOrderedDeps(),
	}
}

// ID satisfies request.Candidate.
func (r *Record) ID() identity.ID { return r.desc.ID }

// Version satisfies request.Candidate.
func (r *Record) Version() string { return r.desc.Version }

// Descriptor returns the immutable descriptor this record was created from.
func (r *Record) Descriptor() *descriptor.Descriptor { return r.desc }

// IsResolved reports whether the parent slot (if declared) is bound and
// every required dependency id is present in resolved_deps — the weaker
// precondition linkability builds on. This is deliberately NOT inverted:
// true means resolved.
func (r *Record) IsResolved() bool {
	if r.desc.HasParent {
		r.parentMu.Lock()
		bound := r.resolvedParent != nil
		r.parentMu.Unlock()
		if !bound {
			return false
		}
	}
	r.depsMu.RLock()
	defer r.depsMu.RUnlock()
	for id := range r.requiredDepIDs {
		if _, ok := r.resolvedDeps.get(id); !ok {
			return false
		}
	}
	return true
}

// Linkable reports the current value of the sticky, monotonic linkable
// flag.
func (r *Record) Linkable() bool {
	r.linkMu.RLock()
	defer r.linkMu.RUnlock()
	return r.linkable
}

// MarkLinkable marks the record linkable. Monotonic: this is the only
// place linkable ever transitions, and it only ever transitions to true.
// Exported for the resolve package, which drives the multi-record DFS
// that decides when to call it.
func (r *Record) MarkLinkable() {
	r.linkMu.Lock()
	r.linkable = true
	r.linkMu.Unlock()
}

// LockLinkability takes the linkability write lock for the duration of the
// is-linkable DFS over this record, held for the whole traversal. The
// resolve package calls this directly since the DFS spans multiple
// records.
func (r *Record) LockLinkability()   { r.linkMu.Lock() }
func (r *Record) UnlockLinkability() { r.linkMu.Unlock() }

// LinkableLocked reads the linkable flag without locking, for callers that
// already hold the linkability lock via LockLinkability (calling Linkable
// instead would deadlock on the non-reentrant RWMutex).
func (r *Record) LinkableLocked() bool { return r.linkable }

// MarkLinkableLocked is MarkLinkable for a caller that already holds this
// record's own linkability lock (the DFS root, whose lock is held for the
// whole traversal).
func (r *Record) MarkLinkableLocked() { r.linkable = true }

// ResolvedDeps returns the current resolved dependency records, in
// discovery (insertion) order.
func (r *Record) ResolvedDeps() []*Record {
	r.depsMu.RLock()
	defer r.depsMu.RUnlock()
	return r.resolvedDeps.values()
}

// ResolvedParent returns the bound parent record, if any.
func (r *Record) ResolvedParent() (*Record, bool) {
	r.parentMu.Lock()
	defer r.parentMu.Unlock()
	return r.resolvedParent, r.resolvedParent != nil
}

// BindDependency implements request.Host for the Regular request subtype.
func (r *Record) BindDependency(depID identity.ID, candidate request.Candidate, vr identity.VersionRange) (bound, alreadyBound, existingMatches bool) {
	cand, ok := candidate.(*Record)
	if !ok {
		return false, false, false
	}
	r.depsMu.Lock()
	defer r.depsMu.Unlock()
	if existing, exists := r.resolvedDeps.get(depID); exists {
		return false, true, vr.Matches(existing.Version())
	}
	r.resolvedDeps.insert(depID, cand)
	return true, false, false
}

// BindParent implements request.Host for the Parent request subtype: sets
// resolved_parent, then reuses or inserts the matching resolved_deps
// entry.
func (r *Record) BindParent(candidate request.Candidate) bool {
	cand, ok := candidate.(*Record)
	if !ok {
		return false
	}
	r.parentMu.Lock()
	if r.resolvedParent != nil {
		r.parentMu.Unlock()
		return false
	}
	r.resolvedParent = cand
	r.parentMu.Unlock()

	r.depsMu.Lock()
	r.resolvedDeps.insert(cand.ID(), cand) // no-op if already present: reuse by identity
	r.depsMu.Unlock()
	return true
}

// noteSatisfied records that req was satisfied by this record acting as
// the candidate; the back-reference is kept for a future removal cascade.
func (r *Record) noteSatisfied(req *request.Request) {
	r.satisfiedMu.Lock()
	r.satisfiedRequests = append(r.satisfiedRequests, req)
	r.satisfiedMu.Unlock()
}

// SatisfiedRequests returns the requests this record has satisfied as a
// candidate, for inspection or future removal cascades.
func (r *Record) SatisfiedRequests() []*request.Request {
	r.satisfiedMu.Lock()
	defer r.satisfiedMu.Unlock()
	out := make([]*request.Request, len(r.satisfiedRequests))
	copy(out, r.satisfiedRequests)
	return out
}

// IsConstructed reports whether Construct has already produced an
// instance.
func (r *Record) IsConstructed() bool {
	r.constructMu.Lock()
	defer r.constructMu.Unlock()
	return r.constructed
}

// Instance returns the constructed instance, if any.
func (r *Record) Instance() (any, bool) {
	r.constructMu.Lock()
	defer r.constructMu.Unlock()
	return r.instance, r.constructed
}

// Construct holds the construction lock for the duration, rejects
// unlinkable records, is idempotent once constructed, and wraps any
// constructor failure as a ConstructionError. The boundary supplies
// exactly one ConstructFunc per plugin (a function-valued hook field), so
// there is no "locate a matching constructor" dispatch step — Construct
// just invokes it directly.
func (r *Record) Construct(args []any) (any, error) {
	// Checked before taking the construction lock so lock acquisition
	// order respects the hierarchy (linkability above construction).
	linkable := r.Linkable()

	r.constructMu.Lock()
	defer r.constructMu.Unlock()

	if !linkable {
		return nil, pluginerr.Unlinkable(string(r.desc.ID))
	}
	if r.constructed {
		return r.instance, nil
	}
	if r.ctor == nil {
		return nil, pluginerr.ConstructionError(string(r.desc.ID), nil)
	}
	instance, err := r.ctor(args)
	if err != nil {
		return nil, pluginerr.ConstructionError(string(r.desc.ID), err)
	}
	r.instance = instance
	r.constructed = true
	return instance, nil
}

// IsActive reports whether all activator hooks have completed
// successfully.
func (r *Record) IsActive() bool {
	r.constructMu.Lock()
	defer r.constructMu.Unlock()
	return r.active
}

// SetActive marks the record active; requires the instance slot to already
// be set, which lifecycle.Driver guarantees by calling this only after a
// successful Construct.
func (r *Record) SetActive() {
	r.constructMu.Lock()
	r.active = true
	r.constructMu.Unlock()
}

// ActivatorProgress returns the index of the next activator hook to run
// and the full sorted hook list, so a retry can resume where a prior
// failure left off.
func (r *Record) ActivatorProgress() (next int, hooks []descriptor.HookHandle) {
	r.constructMu.Lock()
	defer r.constructMu.Unlock()
	return r.nextActivatorIdx, r.desc.Activators
}

// AdvanceActivators records how far call_activators got: idx is the index
// of the first hook not yet successfully run (len(hooks) on full success).
func (r *Record) AdvanceActivators(idx int, err error) {
	r.constructMu.Lock()
	r.nextActivatorIdx = idx
	r.lastActivationErr = err
	r.constructMu.Unlock()
}

// DeactivatorProgress mirrors ActivatorProgress for deactivator hooks.
func (r *Record) DeactivatorProgress() (next int, hooks []descriptor.HookHandle) {
	r.constructMu.Lock()
	defer r.constructMu.Unlock()
	return r.nextDeactivatorIdx, r.desc.Deactivators
}

// AdvanceDeactivators mirrors AdvanceActivators for deactivator hooks.
func (r *Record) AdvanceDeactivators(idx int, err error) {
	r.constructMu.Lock()
	r.nextDeactivatorIdx = idx
	r.constructMu.Unlock()
}
