// Package lifecycle drives the topological construct/activate pass: one
// explicit Initialize call that satisfies pending requests, orders the
// linkable set, constructs each record, and runs its activator hooks —
// retrying failed activations exactly once at the end, a stopgap policy
// pending real plugin removal support.
package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/latticeforge/pluginloader/descriptor"
	"github.com/latticeforge/pluginloader/identity"
	"github.com/latticeforge/pluginloader/pluginerr"
	"github.com/latticeforge/pluginloader/pluginlog"
	"github.com/latticeforge/pluginloader/registry"
	"github.com/latticeforge/pluginloader/resolve"
)

// HookFunc invokes one activator or deactivator hook. The handle is the
// opaque value carried on descriptor.HookHandle; the core never inspects
// it, only passes it through to whatever dynamic dispatch the host uses
// across plugins.
type HookFunc func(ctx context.Context, handle any, args []any) error

// Options configures a Driver. ActivateTimeout/DeactivateTimeout bound a
// single hook invocation; zero disables the bound.
type Options struct {
	Activate          HookFunc
	Deactivate        HookFunc
	ActivateTimeout   time.Duration
	DeactivateTimeout time.Duration
	Logger            *pluginlog.Logger
}

// Result is the outcome of one Initialize call.
type Result struct {
	Order             []identity.ID
	Constructed       []identity.ID
	Activated         []identity.ID
	PostInitFailures  []identity.ID
	FirstFailure      error
}

// Driver drives linkable records through construct -> activate.
type Driver struct {
	reg      *registry.Registry
	resolver *resolve.Resolver
	opts     Options
}

// New builds a Driver over reg/resolver using opts for hook invocation.
func New(reg *registry.Registry, resolver *resolve.Resolver, opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = pluginlog.Noop()
	}
	return &Driver{reg: reg, resolver: resolver, opts: opts}
}

// Initialize runs one full construct/activate pass. It has no timeout of
// its own — the caller is expected to apply one externally via ctx if
// desired; hook invocations individually honor
// Options.Activate/DeactivateTimeout.
func (d *Driver) Initialize(ctx context.Context, args []any) (*Result, error) {
	d.resolver.SatisfyPass()

	for _, rec := range d.reg.Values() {
		d.resolver.IsLinkable(rec)
	}

	order := d.topologicalOrder()
	result := &Result{Order: idsOf(order)}

	var postInitFailures []*registry.Record

	for _, rec := range order {
		if !rec.Descriptor().ShouldInit {
			continue
		}
		if rec.IsConstructed() {
			continue
		}
		if _, err := rec.Construct(args); err != nil {
			d.opts.Logger.Errorf("construct %s: %v", rec.ID(), err)
			if result.FirstFailure == nil {
				result.FirstFailure = err
			}
			return result, pluginerr.ConstructionError(string(rec.ID()), err)
		}
		result.Constructed = append(result.Constructed, rec.ID())

		if err := d.runActivators(ctx, rec, args); err != nil {
			postInitFailures = append(postInitFailures, rec)
			d.opts.Logger.Warnf("activate %s: %v (will retry once at end of initialize)", rec.ID(), err)
			if result.FirstFailure == nil {
				result.FirstFailure = err
			}
			continue
		}
		rec.SetActive()
		result.Activated = append(result.Activated, rec.ID())
	}

	// v1 retry policy: one retry of post_init_failures at the end of
	// initialize(), no backoff, no further retries.
	for _, rec := range postInitFailures {
		if err := d.runActivators(ctx, rec, args); err != nil {
			result.PostInitFailures = append(result.PostInitFailures, rec.ID())
			d.opts.Logger.Warnf("activate retry %s failed permanently: %v", rec.ID(), err)
			continue
		}
		rec.SetActive()
		result.Activated = append(result.Activated, rec.ID())
	}

	return result, nil
}

// runActivators walks a record's sorted activator list from wherever it
// left off on a prior attempt, so a retry resumes rather than restarts.
func (d *Driver) runActivators(ctx context.Context, rec *registry.Record, args []any) error {
	next, hooks := rec.ActivatorProgress()
	for i := next; i < len(hooks); i++ {
		if err := d.invoke(ctx, d.opts.Activate, d.opts.ActivateTimeout, hooks[i], args); err != nil {
			rec.AdvanceActivators(i, err)
			return pluginerr.ActivationError(string(rec.ID()), err)
		}
	}
	rec.AdvanceActivators(len(hooks), nil)
	return nil
}

// Deactivate runs rec's deactivator list from wherever it left off,
// symmetric to runActivators.
func (d *Driver) Deactivate(ctx context.Context, rec *registry.Record, args []any) error {
	next, hooks := rec.DeactivatorProgress()
	for i := next; i < len(hooks); i++ {
		if err := d.invoke(ctx, d.opts.Deactivate, d.opts.DeactivateTimeout, hooks[i], args); err != nil {
			rec.AdvanceDeactivators(i, err)
			return pluginerr.DeactivationError(string(rec.ID()), err)
		}
	}
	rec.AdvanceDeactivators(len(hooks), nil)
	return nil
}

// invoke runs a single hook with a panic-recovering, optionally
// timeout-bounded wrapper: a buffered result channel, a context deadline,
// and a watchdog goroutine that logs if the hook keeps running long after
// its deadline expired.
func (d *Driver) invoke(ctx context.Context, fn HookFunc, timeout time.Duration, hook descriptor.HookHandle, args []any) error {
	if fn == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in hook (priority=%d index=%d): %v\n%s", hook.Priority, hook.Index, r, debug.Stack())
			}
		}()
		done <- fn(ctx, hook.Handle, args)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		go func() {
			select {
			case err := <-done:
				d.opts.Logger.Warnf("hook (priority=%d index=%d) returned after deadline; delay=%s err=%v", hook.Priority, hook.Index, time.Since(start), err)
			case <-time.After(30 * time.Second):
				d.opts.Logger.Errorf("hook (priority=%d index=%d) still running 30s after deadline; possible leak", hook.Priority, hook.Index)
			}
		}()
		return ctx.Err()
	}
}

// topologicalOrder performs a DFS into resolved_deps, children before
// self, over every linkable record not yet visited. A record reachable via
// resolved_deps from a linkable record is usually linkable too (the
// linkability DFS marks its whole visited set together), but an optional
// dependency bound after its dependent became linkable need not be, so
// visit skips any record that is not linkable. ShouldInit==false records
// still appear in the order (their dependents need them marked visited)
// but Initialize skips constructing them.
func (d *Driver) topologicalOrder() []*registry.Record {
	visited := make(map[identity.ID]bool)
	var order []*registry.Record

	var visit func(rec *registry.Record)
	visit = func(rec *registry.Record) {
		if visited[rec.ID()] || !rec.Linkable() {
			return
		}
		visited[rec.ID()] = true
		for _, dep := range rec.ResolvedDeps() {
			visit(dep)
		}
		order = append(order, rec)
	}

	for _, rec := range d.reg.Values() {
		if rec.Linkable() {
			visit(rec)
		}
	}
	return order
}

func idsOf(records []*registry.Record) []identity.ID {
	out := make([]identity.ID, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}
