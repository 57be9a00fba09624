// Package manager wires the registry, resolver, lifecycle driver, a
// discovery boundary, and an analysis worker pool into the single facade
// a host application embeds.
package manager

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/discovery"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/lifecycle"
	"github.com/latticeforge/pluginloader/metrics"
	"github.com/latticeforge/pluginloader/pluginconf"
	"github.com/latticeforge/pluginloader/pluginlog"
	"github.com/latticeforge/pluginloader/registry"
	"github.com/latticeforge/pluginloader/resolve"
)

// Options configures a Manager. Every field is optional; zero values fall
// back to pluginconf.Default() and pluginlog.Noop().
type Options struct {
	// Namespace seeds registry.DefaultBlockPredicate, rejecting any
	// identity the manager would otherwise register as one of its own. An
	// empty Namespace blocks only identities that begin with ".".
	Namespace  string
	Config     pluginconf.Config
	Logger     *pluginlog.Logger
	Metrics    *metrics.Metrics
	Activate   lifecycle.HookFunc
	Deactivate lifecycle.HookFunc
}

// Manager is the single embeddable facade over the registry/resolver/
// lifecycle trio, an ants worker pool for boundary analysis work, and an
// optional fsnotify-backed watcher.
type Manager struct {
	reg      *registry.Registry
	resolver *resolve.Resolver
	driver   *lifecycle.Driver
	pool     *ants.Pool
	logger   *pluginlog.Logger
	metrics  *metrics.Metrics
	cfg      pluginconf.Config

	watcher discovery.Watcher
	stop    chan struct{}
}

// New builds a Manager. The ants pool is sized from opts.Config via
// pluginconf.Config.ResolvedMaxThreads and constructed non-blocking=false,
// so a full pool applies backpressure instead of dropping submitted work.
func New(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = pluginlog.Noop()
	}
	if (opts.Config == pluginconf.Config{}) {
		opts.Config = pluginconf.Default()
	}

	reg := registry.New(registry.DefaultBlockPredicate(opts.Namespace))
	resolver := resolve.New(reg)
	driver := lifecycle.New(reg, resolver, lifecycle.Options{
		Activate:          opts.Activate,
		Deactivate:        opts.Deactivate,
		ActivateTimeout:   opts.Config.ActivateTimeout,
		DeactivateTimeout: opts.Config.DeactivateTimeout,
		Logger:            opts.Logger,
	})

	poolSize := opts.Config.ResolvedMaxThreads()
	maxBlocking := poolSize * 4
	if maxBlocking < 64 {
		maxBlocking = 64
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false), ants.WithMaxBlockingTasks(maxBlocking))
	if err != nil {
		return nil, fmt.Errorf("analysis pool: %w", err)
	}

	return &Manager{
		reg:      reg,
		resolver: resolver,
		driver:   driver,
		pool:     pool,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		cfg:      opts.Config,
		stop:     make(chan struct{}),
	}, nil
}

// Register inserts a descriptor+constructor pair, rejecting blocked
// identities up front, then tries the newly inserted record against the
// outstanding pending requests incrementally.
func (m *Manager) Register(desc *descriptor.Descriptor, ctor registry.ConstructFunc) (*registry.Record, error) {
	if m.reg.IsBlocked(desc.ID) {
		return nil, fmt.Errorf("identity %s is blocked", desc.ID)
	}
	rec, err := m.reg.Insert(desc, ctor)
	if err != nil {
		return nil, err
	}
	m.resolver.TrySatisfyOne(rec)
	m.observeRegistry()
	return rec, nil
}

// RegisterFromLoader uses a discovery.ContainerLoader to resolve a
// descriptor+constructor for id, then registers it the same way Register
// does. This is the seam through which a Walker's discovered identities
// flow.
func (m *Manager) RegisterFromLoader(ctx context.Context, id identity.ID, loader discovery.ContainerLoader) (*registry.Record, error) {
	desc, ctor, err := loader.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return m.Register(desc, ctor)
}

// Initialize runs one construct/activate pass over every currently
// linkable record.
func (m *Manager) Initialize(ctx context.Context, args []any) (*lifecycle.Result, error) {
	result, err := m.driver.Initialize(ctx, args)
	if err != nil {
		m.metrics.IncConstructionFailure()
	}
	for range result.PostInitFailures {
		m.metrics.IncActivationFailure()
	}
	m.observeRegistry()
	return result, err
}

// Deactivate runs rec's deactivator hooks from wherever they left off.
func (m *Manager) Deactivate(ctx context.Context, rec *registry.Record, args []any) error {
	err := m.driver.Deactivate(ctx, rec, args)
	if err != nil {
		m.metrics.IncDeactivationFailure()
	}
	return err
}

// SatisfyPass runs one bulk resolver pass and reports whether every
// request is now satisfied.
func (m *Manager) SatisfyPass() bool {
	done := m.resolver.SatisfyPass()
	m.observeRegistry()
	return done
}

// Lookup returns the record for id, if any.
func (m *Manager) Lookup(id identity.ID) (*registry.Record, bool) {
	return m.reg.Lookup(id)
}

// Values returns every registered record in insertion order.
func (m *Manager) Values() []*registry.Record {
	return m.reg.Values()
}

// SubmitAnalysis schedules fn on the manager's worker pool, the seam for
// bounded-concurrency boundary-side analysis work (e.g. a Walker scanning
// containers) that should not block the caller indefinitely. Each
// submission gets a fresh correlation id, passed to fn as its argument;
// the manager does not log it itself.
func (m *Manager) SubmitAnalysis(fn func(correlationID string)) error {
	correlationID := uuid.NewString()
	return m.pool.Submit(func() {
		fn(correlationID)
	})
}

// WatchDiscoveryRoots starts an fsnotify-backed watcher over roots and
// feeds each event to handle until Close is called or Shutdown runs.
func (m *Manager) WatchDiscoveryRoots(roots []string, handle func(discovery.WatchEvent)) error {
	w, err := discovery.NewFSWatcher(roots, m.cfg.WatcherPollInterval, m.logger)
	if err != nil {
		return fmt.Errorf("watch discovery roots: %w", err)
	}
	m.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				handle(ev)
			case <-m.stop:
				return
			}
		}
	}()
	return nil
}

// Shutdown stops the watcher (if any), releases the worker pool, and
// signals the watch-event relay goroutine to exit.
func (m *Manager) Shutdown() {
	close(m.stop)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	m.pool.Release()
}

func (m *Manager) observeRegistry() {
	if m.metrics == nil {
		return
	}
	records := m.reg.Values()
	linkable := 0
	for _, rec := range records {
		if rec.Linkable() {
			linkable++
		}
	}
	m.metrics.ObserveRegistry(len(records), m.reg.PendingLen(), linkable)
}
