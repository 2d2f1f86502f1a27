// Package watch re-runs a callback for documents created or rewritten in
// a directory.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir      string
	match    func(path string) bool
	onChange func(path string)
	debounce time.Duration
	ready    chan struct{}
}

// New creates a watcher calling onChange for every path under dir that
// match accepts.
func New(dir string, match func(string) bool, onChange func(string)) *Watcher {
	return &Watcher{
		dir:      dir,
		match:    match,
		onChange: onChange,
		debounce: DefaultDebounce,
		ready:    make(chan struct{}),
	}
}

// WithDebounce sets the debounce duration.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Watch blocks until ctx is cancelled or the watcher fails. onChange runs
// on the calling goroutine, one path at a time; bursts of events for the
// same path collapse into one call.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	logging.Info("watching", "dir", w.dir)
	close(w.ready)

	d := newDebouncer(w.debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.match(event.Name) {
				logging.Debug("watch_ignored", "path", event.Name, "op", event.Op.String())
				continue
			}
			d.touch(filepath.Clean(event.Name))

		case path := <-d.fired:
			d.take(path)
			logging.Info("file_changed", "path", path)
			w.onChange(path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch_error", "error", err.Error())
		}
	}
}

// debouncer delays paths until they have been quiet for delay. touch,
// take and stop must be called from one goroutine; fired paths arrive on
// the fired channel.
type debouncer struct {
	delay  time.Duration
	timers map[string]*time.Timer
	fired  chan string
	done   chan struct{}
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
		fired:  make(chan string),
		done:   make(chan struct{}),
	}
}

// touch (re)starts the quiet period of path. A timer that already fired
// is left alone: its path is waiting on fired and will be handled with
// the latest content.
func (d *debouncer) touch(path string) {
	if t, ok := d.timers[path]; ok {
		if t.Stop() {
			t.Reset(d.delay)
		}
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		select {
		case d.fired <- path:
		case <-d.done:
		}
	})
}

// take forgets path once its fired value has been received.
func (d *debouncer) take(path string) {
	delete(d.timers, path)
}

// stop cancels pending timers and releases any blocked on fired.
func (d *debouncer) stop() {
	close(d.done)
	for _, t := range d.timers {
		t.Stop()
	}
}
