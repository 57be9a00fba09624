// Package request models the outstanding "need X, version in R" bindings a
// freshly registered plugin emits, and the two ways they get satisfied:
// as a regular dependency slot or as the synthetic parent slot.
package request

import (
	"sync"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/pluginerr"
)

// Status is the derived Pending/Satisfied state of a Request.
type Status int

const (
	Pending Status = iota
	Satisfied
)

// Kind distinguishes a Regular dependency slot from the synthetic Parent
// slot.
type Kind int

const (
	KindRegular Kind = iota
	KindParent
)

// Candidate is the minimal view of a would-be satisfier this package
// needs: just enough to check the id and version match conditions. Kept
// as an interface so this package has no import-cycle dependency on
// registry.
type Candidate interface {
	ID() identity.ID
	Version() string
}

// Host is the minimal view of the requestor record this package needs to
// apply a successful bind — the mutation itself happens on the host's own
// state, under the host's own locks (the requestor record's dependencies
// write lock for Regular, or parent lock then dependencies write lock for
// Parent).
type Host interface {
	// BindDependency attempts to insert candidate into the host's
	// resolved_deps under depID. Returns bound=true on a fresh insert;
	// if depID is already present, returns alreadyBound=true and
	// existingMatches reports whether the existing binding's version
	// satisfies vr (the version range this particular request wants).
	BindDependency(depID identity.ID, candidate Candidate, vr identity.VersionRange) (bound, alreadyBound, existingMatches bool)
	// BindParent sets the host's resolved_parent to candidate, reusing
	// any existing resolved_deps entry for the same id.
	BindParent(candidate Candidate) (bound bool)
}

// Request is one outstanding binding intent from requestor for want.
type Request struct {
	mu sync.Mutex

	Requestor identity.ID
	Want      descriptor.DeclaredDep
	Kind      Kind

	satisfier identity.ID
	hasSat    bool
}

// New constructs a Pending request.
func New(requestor identity.ID, want descriptor.DeclaredDep, kind Kind) *Request {
	return &Request{Requestor: requestor, Want: want, Kind: kind}
}

// Status reports Pending or Satisfied, derived from whether a satisfier is
// recorded.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasSat {
		return Satisfied
	}
	return Pending
}

// Satisfier returns the bound identity and whether one is set.
func (r *Request) Satisfier() (identity.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.satisfier, r.hasSat
}

// TrySatisfy attempts to bind candidate into host, checking four
// conditions: the request must be Pending, the ids must match, the
// version range must match, and the subtype-specific apply must succeed.
func (r *Request) TrySatisfy(host Host, candidate Candidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasSat {
		return false
	}
	if candidate.ID() != r.Want.ID {
		return false
	}
	if !r.Want.VersionRange.Matches(candidate.Version()) {
		return false
	}

	if !r.apply(host, candidate) {
		return false
	}
	r.satisfier = candidate.ID()
	r.hasSat = true
	return true
}

func (r *Request) apply(host Host, candidate Candidate) bool {
	switch r.Kind {
	case KindRegular:
		bound, alreadyBound, existingMatches := host.BindDependency(r.Want.ID, candidate, r.Want.VersionRange)
		if bound {
			return true
		}
		// If the id is already present (e.g. the parent bound it
		// first) and the existing binding's version matches, the
		// request is satisfied by the existing binding instead of
		// failing outright.
		return alreadyBound && existingMatches
	case KindParent:
		return host.BindParent(candidate)
	default:
		return false
	}
}

// TryDesatisfy is the inverse of TrySatisfy, restoring Pending and undoing
// the binding. Reserved for future removal support; exercising it today
// returns Unsupported without mutating state.
func (r *Request) TryDesatisfy() error {
	return pluginerr.ErrUnsupported
}
