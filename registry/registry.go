package registry

import (
	"sync"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/pluginerr"
	"github.com/latticeforge/pluginloader/request"
)

// BlockPredicate rejects identities before they ever reach Insert, an
// opaque predicate the caller supplies. A nil predicate blocks nothing.
type BlockPredicate func(identity.ID) bool

// DefaultBlockPredicate rejects identities prefixed by the manager's own
// namespace.
func DefaultBlockPredicate(ownNamespace string) BlockPredicate {
	prefix := ownNamespace + "."
	return func(id identity.ID) bool {
		s := string(id)
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	}
}

// Registry is the ID -> Record arena plus index map: an arena
// (`[]*Record`) in insertion order with a `map[identity.ID]int` index for
// lookup by identity. Records hold direct pointers to the records they
// resolved, so a dependency cycle is a pointer cycle between records. The
// registry lock and the pending-requests lock are the top two levels of
// the lock hierarchy.
type Registry struct {
	mu     sync.RWMutex
	arena  []*Record
	index  map[identity.ID]int

	pendingMu sync.RWMutex
	pending   []*request.Request

	changeMu   sync.Mutex
	changeCond *sync.Cond
	generation uint64

	isBlocked BlockPredicate
}

// New constructs an empty Registry. blocked may be nil to reject nothing.
func New(blocked BlockPredicate) *Registry {
	reg := &Registry{
		index:     make(map[identity.ID]int),
		isBlocked: blocked,
	}
	reg.changeCond = sync.NewCond(&reg.changeMu)
	return reg
}

// IsBlocked applies the configured predicate, defaulting to "never
// blocked" when none was configured.
func (reg *Registry) IsBlocked(id identity.ID) bool {
	if reg.isBlocked == nil {
		return false
	}
	return reg.isBlocked(id)
}

// buildRequests emits one DependencyRequest per declared dependency plus,
// if the descriptor names a parent, one Parent request.
func buildRequests(rec *Record) []*request.Request {
	reqs := make([]*request.Request, 0, len(rec.desc.Dependencies)+1)
	for _, dep := range rec.desc.Dependencies {
		reqs = append(reqs, request.New(rec.desc.ID, dep, request.KindRegular))
	}
	if rec.desc.HasParent {
		parentDep := descriptor.DeclaredDep{
			ID:           rec.desc.ParentID,
			VersionRange: identity.Any(),
			Required:     true,
		}
		reqs = append(reqs, request.New(rec.desc.ID, parentDep, request.KindParent))
	}
	return reqs
}

// Insert adds desc to the registry under a fresh id: the duplicate check,
// record creation, and request emission happen inside one critical
// section under the registry write lock.
func (reg *Registry) Insert(desc *descriptor.Descriptor, ctor ConstructFunc) (*Record, error) {
	reg.mu.Lock()
	if _, exists := reg.index[desc.ID]; exists {
		reg.mu.Unlock()
		return nil, pluginerr.DuplicateID(string(desc.ID))
	}

	rec := newRecord(desc, ctor)
	idx := len(reg.arena)
	reg.arena = append(reg.arena, rec)
	reg.index[desc.ID] = idx
	reqs := buildRequests(rec)

	reg.pendingMu.Lock()
	reg.pending = append(reg.pending, reqs...)
	reg.pendingMu.Unlock()
	reg.mu.Unlock()

	reg.notifyChange()
	return rec, nil
}

// Lookup returns the record for id, read-lock only.
func (reg *Registry) Lookup(id identity.ID) (*Record, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	idx, ok := reg.index[id]
	if !ok {
		return nil, false
	}
	return reg.arena[idx], true
}

// Values returns every record, in insertion order, read-lock only.
func (reg *Registry) Values() []*Record {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Record, len(reg.arena))
	copy(out, reg.arena)
	return out
}

// Len reports the number of registered records.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.arena)
}

// PendingLen reports the number of outstanding requests, read-lock only.
func (reg *Registry) PendingLen() int {
	reg.pendingMu.RLock()
	defer reg.pendingMu.RUnlock()
	return len(reg.pending)
}

// Remove is reserved for future work: in-place removal is not implemented
// yet. It is fully reachable and returns Unsupported rather than panicking
// or being absent from the API.
func (reg *Registry) Remove(id identity.ID) error {
	return pluginerr.ErrUnsupported
}

// SatisfyPass is the bulk resolver entry point: it holds the registry read
// lock and the pending-requests write lock for the duration, tries every
// still-pending request against every record in insertion order (ties
// break by insertion order), and removes any request that becomes
// satisfied. Returns true iff the pending list is empty afterward. Running
// it twice with no intervening Insert is a no-op the second time, since no
// request ever reverts to Pending.
func (reg *Registry) SatisfyPass() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	reg.pendingMu.Lock()
	defer reg.pendingMu.Unlock()

	remaining := make([]*request.Request, 0, len(reg.pending))
	for _, req := range reg.pending {
		if req.Status() == request.Satisfied {
			continue
		}
		hostIdx, ok := reg.index[req.Requestor]
		if !ok {
			remaining = append(remaining, req)
			continue
		}
		host := reg.arena[hostIdx]
		if !reg.trySatisfyAgainstAll(req, host) {
			remaining = append(remaining, req)
		}
	}
	reg.pending = remaining
	return len(reg.pending) == 0
}

// trySatisfyAgainstAll walks the arena in insertion order trying each
// record as a candidate for req, stopping at the first success.
func (reg *Registry) trySatisfyAgainstAll(req *request.Request, host *Record) bool {
	for _, cand := range reg.arena {
		if req.TrySatisfy(host, cand) {
			cand.noteSatisfied(req)
			return true
		}
	}
	return false
}

// TrySatisfyOne is the incremental resolver entry point, used when a
// single newly discovered record should be tried against the
// outstanding pending requests without a full bulk pass. It acquires the
// same lock pair as SatisfyPass but only evaluates candidate against
// currently pending requests.
func (reg *Registry) TrySatisfyOne(candidate *Record) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	reg.pendingMu.Lock()
	defer reg.pendingMu.Unlock()

	remaining := reg.pending[:0]
	for _, req := range reg.pending {
		if req.Status() == request.Pending {
			hostIdx, ok := reg.index[req.Requestor]
			if ok {
				host := reg.arena[hostIdx]
				if req.TrySatisfy(host, candidate) {
					candidate.noteSatisfied(req)
					continue
				}
			}
		}
		remaining = append(remaining, req)
	}
	reg.pending = remaining
}

// notifyChange bumps the generation counter and wakes every waiter. This
// avoids the classic release-read-lock/take-separate-lock/wait/reacquire
// race: waiters never hold reg.mu while blocked, and the counter means a
// signal sent between a waiter's check and its Wait call is never lost.
func (reg *Registry) notifyChange() {
	reg.changeMu.Lock()
	reg.generation++
	reg.changeCond.Broadcast()
	reg.changeMu.Unlock()
}

// Generation returns the current change counter, for use as the `since`
// argument to WaitForChange.
func (reg *Registry) Generation() uint64 {
	reg.changeMu.Lock()
	defer reg.changeMu.Unlock()
	return reg.generation
}

// WaitForChange blocks until the registry's generation counter advances
// past since, or stop is closed, whichever comes first. Returns the
// generation observed on return.
func (reg *Registry) WaitForChange(since uint64, stop <-chan struct{}) uint64 {
	done := make(chan struct{})
	if stop != nil {
		go func() {
			select {
			case <-stop:
				reg.changeMu.Lock()
				reg.changeCond.Broadcast()
				reg.changeMu.Unlock()
			case <-done:
			}
		}()
	}

	reg.changeMu.Lock()
	defer reg.changeMu.Unlock()
	for reg.generation == since {
		select {
		case <-stop:
			close(done)
			return reg.generation
		default:
		}
		reg.changeCond.Wait()
	}
	close(done)
	return reg.generation
}
