package watch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isReqIF(path string) bool {
	return strings.HasSuffix(path, ".reqif")
}

func start(t *testing.T, dir string) (<-chan string, context.CancelFunc, <-chan error) {
	t.Helper()
	changed := make(chan string, 16)
	w := New(dir, isReqIF, func(p string) { changed <- p }).WithDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watch exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return changed, cancel, done
}

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	changed, cancel, done := start(t, dir)
	defer cancel()

	path := filepath.Join(dir, "spec.reqif")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("<REQ-IF/>"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	select {
	case got := <-changed:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case got := <-changed:
		t.Fatalf("unexpected second change: %s", got)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), isReqIF, func(string) {})
	assert.Error(t, w.Watch(context.Background()))
}

func TestDebouncerTouchAfterFire(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.stop()

	d.touch("spec.reqif")
	time.Sleep(50 * time.Millisecond) // timer fired; its send is pending
	d.touch("spec.reqif")

	select {
	case got := <-d.fired:
		d.take(got)
		assert.Equal(t, "spec.reqif", got)
	case <-time.After(5 * time.Second):
		t.Fatal("debouncer never fired")
	}

	select {
	case got := <-d.fired:
		t.Fatalf("path fired twice: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerStopReleasesPendingSends(t *testing.T) {
	before := runtime.NumGoroutine()

	d := newDebouncer(time.Millisecond)
	d.touch("a.reqif")
	d.touch("b.reqif")
	time.Sleep(50 * time.Millisecond) // both sends now blocked on fired
	d.stop()

	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		5*time.Second, 10*time.Millisecond, "timer goroutines still blocked after stop")
}
