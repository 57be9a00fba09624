package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFSWatcherDetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFSWatcher([]string{dir}, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "plugin.so")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		require.Equal(t, Added, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event")
	}

	require.NoError(t, os.Remove(target))

	select {
	case ev := <-w.Events():
		require.Equal(t, Removed, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remove event")
	}
}

func TestFSWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFSWatcher([]string{dir}, 10*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestFSWatcherEventsChannelClosesAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFSWatcher([]string{dir}, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		require.False(t, ok, "expected the events channel to be closed after Close")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events channel to close")
	}
}
