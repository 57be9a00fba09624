// Package discovery defines the boundary interfaces kept out of scope for
// the core: a filesystem walker, a sandboxed container loader, and a
// filesystem watcher. The core only ever consumes these interfaces; this
// package additionally ships one concrete, optional Watcher implementation
// backed by fsnotify so the module is usable without a caller having to
// write their own.
package discovery

import (
	"context"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/registry"
)

// Discovered is one (identity, loader handle) pair a Walker produces.
type Discovered struct {
	Identity identity.ID
	Loader   ContainerLoader
}

// Walker scans a directory for plugin containers and streams the
// (identity, loader) pairs it finds. The core never walks filesystems
// itself.
type Walker interface {
	Walk(ctx context.Context, root string) (<-chan Discovered, error)
}

// ContainerLoader is the sandboxed code loader boundary: given an
// identity, it yields a descriptor and a construction callback. The core
// never parses container bytes.
type ContainerLoader interface {
	Load(ctx context.Context, id identity.ID) (*descriptor.Descriptor, registry.ConstructFunc, error)
}

// WatchEventKind distinguishes an add from a remove signal.
type WatchEventKind int

const (
	Added WatchEventKind = iota
	Removed
)

// WatchEvent is an opaque add/remove signal for a watched root; the core
// treats these as triggers to invoke registry add/remove, never
// interpreting the filesystem event itself.
type WatchEvent struct {
	Kind WatchEventKind
	Root string
}

// Watcher pushes WatchEvents for watched roots until Close is called.
type Watcher interface {
	Events() <-chan WatchEvent
	Close() error
}
