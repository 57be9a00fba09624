// Package identity defines plugin identity and version-range matching: the
// two smallest, leaf-most concepts the rest of the resolver builds on.
package identity

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ID is an opaque plugin identity. Two IDs are equal iff their underlying
// strings are byte-equal; the core never inspects structure beyond that.
type ID string

// Sentinel metadata literals recognized at the boundary (see descriptor
// package); the core itself only ever sees parsed VersionRange values.
const (
	SentinelAny  = "[any]"
	SentinelNone = "[none]"
)

// RangeKind distinguishes the VersionRange variants.
type RangeKind int

const (
	// KindAny matches any version string.
	KindAny RangeKind = iota
	// KindExact matches iff the version string is byte-equal to Version.
	KindExact
	// KindConstraint matches iff the version string parses as semver and
	// satisfies Constraint. This is an optional, future-extensible bounded
	// range beyond plain exact/any matching.
	KindConstraint
)

// VersionRange is one of Any, Exact(v), or a semver Constraint.
type VersionRange struct {
	kind       RangeKind
	exact      string
	constraint *semver.Constraints
	raw        string
}

// Any returns the VersionRange that matches every version string.
func Any() VersionRange {
	return VersionRange{kind: KindAny}
}

// Exact returns the VersionRange that matches only v, by byte equality.
func Exact(v string) VersionRange {
	return VersionRange{kind: KindExact, exact: v}
}

// ParseConstraint parses a semver range expression such as ">=1.0.0, <2.0.0"
// into a VersionRange. Returns an error if expr is not a valid constraint
// string; FromBoundaryString, the descriptor boundary's caller, falls back
// to Exact in that case rather than rejecting the descriptor.
func ParseConstraint(expr string) (VersionRange, error) {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return VersionRange{}, fmt.Errorf("parse version constraint %q: %w", expr, err)
	}
	return VersionRange{kind: KindConstraint, constraint: c, raw: expr}, nil
}

// Matches reports whether version satisfies the range. A Constraint range
// that fails to parse version as semver never matches — it is treated as a
// mismatch, not a panic or error, since Matches has no error return.
func (r VersionRange) Matches(version string) bool {
	switch r.kind {
	case KindAny:
		return true
	case KindExact:
		return version == r.exact
	case KindConstraint:
		v, err := semver.NewVersion(version)
		if err != nil {
			return false
		}
		return r.constraint.Check(v)
	default:
		return false
	}
}

// Kind reports which variant r is.
func (r VersionRange) Kind() RangeKind { return r.kind }

// String renders the range back to its boundary representation, mostly for
// logging and error messages.
func (r VersionRange) String() string {
	switch r.kind {
	case KindAny:
		return SentinelAny
	case KindExact:
		return r.exact
	case KindConstraint:
		return r.raw
	default:
		return "<invalid version range>"
	}
}

// constraintOperators are the characters that mark a version_range string
// as a semver constraint expression rather than a literal version to match
// by byte equality. A plain literal like "1.0" or "2.3.1" never contains
// any of these, so the two base variants (Any, Exact) behave as expected;
// only an explicit range expression opts into the optional Constraint
// variant.
const constraintOperators = "<>=~^, "

// FromBoundaryString parses the boundary's metadata.version field:
// SentinelAny (or empty) maps to Any. A string containing constraint
// syntax is parsed as a Constraint; anything else matches by byte equality
// (Exact).
func FromBoundaryString(s string) VersionRange {
	if s == "" || s == SentinelAny {
		return Any()
	}
	if strings.ContainsAny(s, constraintOperators) {
		if c, err := ParseConstraint(s); err == nil {
			return c
		}
	}
	return Exact(s)
}
