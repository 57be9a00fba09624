// Package descriptor builds the immutable, once-per-plugin-class metadata
// record the rest of the resolver operates on, validating the raw fields a
// container loader hands across the boundary.
package descriptor

import (
	"sort"

	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/pluginerr"
)

// PluginType distinguishes a plugin that should be driven through the full
// lifecycle from a library-only plugin that exists solely to be depended
// on.
type PluginType int

const (
	TypeStandard PluginType = iota
	TypeLibrary
)

// DeclaredDep is one entry of a descriptor's dependency list, frozen at
// construction time.
type DeclaredDep struct {
	ID           identity.ID
	VersionRange identity.VersionRange
	Required     bool
}

// HookHandle is an opaque reference to an external activator or deactivator
// hook, invoked by index — the core never inherits from or inspects plugin
// types directly, only dispatches through the opaque handle.
type HookHandle struct {
	Priority int
	Index    int // discovery position, used to break priority ties
	Handle   any
}

// RawMetadata is the boundary struct a ContainerLoader produces: every
// field is string-valued and unvalidated.
type RawMetadata struct {
	ID          string
	Version     string
	Description string
	Author      string
	ParentID    string // "[none]" or empty means no parent
	Type        string // "STANDARD" or "LIBRARY"; anything else defaults to STANDARD

	Dependencies []RawDependency
	Activators   []RawHook
	Deactivators []RawHook
}

// RawDependency is one unvalidated dependency entry from RawMetadata.
type RawDependency struct {
	ID       string
	Version  string // "[any]" -> Any, otherwise per identity.FromBoundaryString
	Required *bool  // nil defaults to true
}

// RawHook is one unvalidated activator/deactivator entry.
type RawHook struct {
	Priority int
	Handle   any
}

// Descriptor is immutable once constructed. Identity for resolution
// purposes is a function only of ID, Version, and Dependencies — ParentID,
// hooks, and free-form fields are excluded deliberately since they do not
// participate in identity.
type Descriptor struct {
	ID              identity.ID
	Version         string
	Description     string
	Author          string
	ParentID        identity.ID // empty means no parent
	HasParent       bool
	Dependencies    []DeclaredDep
	Type            PluginType
	ShouldInit      bool // false for TypeLibrary
	Activators      []HookHandle
	Deactivators    []HookHandle
}

// FromRawMetadata validates raw and, on success, freezes it into a
// Descriptor. Failure returns an InvalidDescriptor error; the input never
// reaches the registry in that case.
func FromRawMetadata(raw RawMetadata) (*Descriptor, error) {
	if raw.ID == "" {
		return nil, pluginerr.InvalidDescriptor("", "id must be non-empty")
	}
	if raw.Version == "" {
		return nil, pluginerr.InvalidDescriptor(raw.ID, "version must be non-empty")
	}

	deps := make([]DeclaredDep, 0, len(raw.Dependencies))
	for _, rd := range raw.Dependencies {
		if rd.ID == "" {
			return nil, pluginerr.InvalidDescriptor(raw.ID, "dependency id must be non-empty")
		}
		vr := identity.FromBoundaryString(rd.Version)
		required := true
		if rd.Required != nil {
			required = *rd.Required
		}
		deps = append(deps, DeclaredDep{
			ID:           identity.ID(rd.ID),
			VersionRange: vr,
			Required:     required,
		})
	}

	d := &Descriptor{
		ID:           identity.ID(raw.ID),
		Version:      raw.Version,
		Description:  raw.Description,
		Author:       raw.Author,
		Dependencies: deps,
		Type:         parseType(raw.Type),
	}
	d.ShouldInit = d.Type != TypeLibrary

	if raw.ParentID != "" && raw.ParentID != identity.SentinelNone {
		d.ParentID = identity.ID(raw.ParentID)
		d.HasParent = true
	}

	d.Activators = toHookHandles(raw.Activators)
	d.Deactivators = toHookHandles(raw.Deactivators)

	return d, nil
}

func parseType(s string) PluginType {
	if s == "LIBRARY" {
		return TypeLibrary
	}
	return TypeStandard
}

// toHookHandles stamps discovery-position indices and stable-sorts by
// priority: lower priority runs first, ties broken by discovery order.
func toHookHandles(raw []RawHook) []HookHandle {
	hooks := make([]HookHandle, len(raw))
	for i, h := range raw {
		hooks[i] = HookHandle{Priority: h.Priority, Index: i, Handle: h.Handle}
	}
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})
	return hooks
}

// RequiredDepIDs returns the subset of Dependencies with Required == true,
// the set Record caches as its required dependency ids.
func (d *Descriptor) RequiredDepIDs() map[identity.ID]struct{} {
	out := make(map[identity.ID]struct{})
	for _, dep := range d.Dependencies {
		if dep.Required {
			out[dep.ID] = struct{}{}
		}
	}
	return out
}
