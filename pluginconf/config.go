// Package pluginconf resolves the runtime tunables (worker pool size,
// watcher poll interval, lifecycle timeouts) from either the environment
// (standalone use, via Viper) or a host application's existing kratos
// config tree (embedded use).
package pluginconf

import (
	"runtime"
	"time"

	kratosconfig "github.com/go-kratos/kratos/v2/config"
	"github.com/spf13/viper"
)

// EnvPrefix is the Viper environment-variable prefix every tunable below
// is bound under, e.g. PLUGIN_MANAGER_MAX_THREADS.
const EnvPrefix = "PLUGIN_MANAGER"

// Config carries every tunable the manager and its collaborators read at
// construction time — the thread pool and logger are explicit constructor
// parameters, and every other ambient knob follows the same pattern.
type Config struct {
	// MaxThreads sizes the analysis worker pool. Non-positive means "use
	// runtime.NumCPU()".
	MaxThreads int
	// WatcherPollInterval bounds the directory-monitor loop's wait;
	// 500ms by default.
	WatcherPollInterval time.Duration
	// ActivateTimeout/DeactivateTimeout bound a single lifecycle hook
	// invocation. Zero disables the bound.
	ActivateTimeout   time.Duration
	DeactivateTimeout time.Duration
}

// ResolvedMaxThreads returns MaxThreads if positive, else
// runtime.NumCPU().
func (c Config) ResolvedMaxThreads() int {
	if c.MaxThreads > 0 {
		return c.MaxThreads
	}
	return runtime.NumCPU()
}

// Default returns hardware-concurrency sized pool, 500ms watcher poll,
// and 5s activation timeouts.
func Default() Config {
	return Config{
		MaxThreads:          0,
		WatcherPollInterval: 500 * time.Millisecond,
		ActivateTimeout:     5 * time.Second,
		DeactivateTimeout:   5 * time.Second,
	}
}

// Load resolves Config from the environment via Viper's AutomaticEnv,
// bound to EnvPrefix, for standalone use outside a kratos host app.
// PLUGIN_ANALYSIS_THREADS is accepted as an alias for
// PLUGIN_MANAGER_MAX_THREADS
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	_ = v.BindEnv("analysis_threads", "PLUGIN_ANALYSIS_THREADS")
	v.SetDefault("max_threads", 0)
	v.SetDefault("watcher_poll_ms", 500)
	v.SetDefault("activate_timeout_ms", 5000)
	v.SetDefault("deactivate_timeout_ms", 5000)

	cfg := Default()
	if v.IsSet("max_threads") {
		cfg.MaxThreads = v.GetInt("max_threads")
	}
	if alias := v.GetInt("analysis_threads"); alias > 0 {
		cfg.MaxThreads = alias
	}
	cfg.WatcherPollInterval = time.Duration(v.GetInt("watcher_poll_ms")) * time.Millisecond
	cfg.ActivateTimeout = time.Duration(v.GetInt("activate_timeout_ms")) * time.Millisecond
	cfg.DeactivateTimeout = time.Duration(v.GetInt("deactivate_timeout_ms")) * time.Millisecond
	return cfg
}

// FromKratosConfig adapts a host application's kratos config.Config tree
// into a Config, reading tunables off "plugin_manager.*" keys. Missing or
// unparseable values keep their Default() value rather than erroring.
func FromKratosConfig(c kratosconfig.Config) Config {
	cfg := Default()
	if c == nil {
		return cfg
	}

	var maxThreads int
	if err := c.Value("plugin_manager.max_threads").Scan(&maxThreads); err == nil && maxThreads > 0 {
		cfg.MaxThreads = maxThreads
	}

	var pollMS int
	if err := c.Value("plugin_manager.watcher_poll_ms").Scan(&pollMS); err == nil && pollMS > 0 {
		cfg.WatcherPollInterval = time.Duration(pollMS) * time.Millisecond
	}

	var activateStr string
	if err := c.Value("plugin_manager.activate_timeout").Scan(&activateStr); err == nil {
		if d, err2 := time.ParseDuration(activateStr); err2 == nil {
			cfg.ActivateTimeout = clampTimeout(d)
		}
	}

	var deactivateStr string
	if err := c.Value("plugin_manager.deactivate_timeout").Scan(&deactivateStr); err == nil {
		if d, err2 := time.ParseDuration(deactivateStr); err2 == nil {
			cfg.DeactivateTimeout = clampTimeout(d)
		}
	}

	return cfg
}

// clampTimeout bounds a configured duration to [1s, 60s] so a
// misconfigured host can't set an effectively unbounded or
// effectively-zero hook timeout.
func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d < time.Second:
		return time.Second
	case d > 60*time.Second:
		return 60 * time.Second
	default:
		return d
	}
}
