package pluginconf

import (
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.WatcherPollInterval != 500*time.Millisecond {
		t.Fatalf("WatcherPollInterval = %v, want 500ms", cfg.WatcherPollInterval)
	}
	if cfg.ActivateTimeout != 5*time.Second || cfg.DeactivateTimeout != 5*time.Second {
		t.Fatalf("expected 5s activate/deactivate timeouts, got %v/%v", cfg.ActivateTimeout, cfg.DeactivateTimeout)
	}
}

func TestResolvedMaxThreadsFallsBackToNumCPU(t *testing.T) {
	cfg := Config{MaxThreads: 0}
	if cfg.ResolvedMaxThreads() <= 0 {
		t.Fatal("expected a positive fallback thread count")
	}
}

func TestResolvedMaxThreadsHonorsExplicitValue(t *testing.T) {
	cfg := Config{MaxThreads: 7}
	if cfg.ResolvedMaxThreads() != 7 {
		t.Fatalf("ResolvedMaxThreads() = %d, want 7", cfg.ResolvedMaxThreads())
	}
}

func TestFromKratosConfigNilReturnsDefault(t *testing.T) {
	cfg := FromKratosConfig(nil)
	if cfg != Default() {
		t.Fatalf("expected Default() for a nil config, got %+v", cfg)
	}
}

func TestClampTimeoutBounds(t *testing.T) {
	if got := clampTimeout(10 * time.Millisecond); got != time.Second {
		t.Fatalf("clampTimeout(10ms) = %v, want 1s floor", got)
	}
	if got := clampTimeout(5 * time.Minute); got != 60*time.Second {
		t.Fatalf("clampTimeout(5m) = %v, want 60s ceiling", got)
	}
	if got := clampTimeout(10 * time.Second); got != 10*time.Second {
		t.Fatalf("clampTimeout(10s) = %v, want unchanged", got)
	}
}
