// Package watch turns file system changes under the router's state paths
// into debounced wake-ups for status subscribers.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts such as a write followed by a rename.
const DefaultDebounce = 500 * time.Millisecond

// Watcher fans one fsnotify watcher out to any number of subscribers.
type Watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]bool // exact paths of watched files
	dirs     map[string]bool // directories whose every entry matters
	debounce time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// New watches each directory in dirs and each file in files. A file is
// watched through its parent so that it may be created, removed or replaced
// by rename. Paths whose directory does not exist are skipped with a warning.
func New(log *slog.Logger, dirs, files []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: DefaultDebounce,
		log:      log,
		subs:     make(map[chan struct{}]struct{}),
	}

	added := make(map[string]bool)
	add := func(dir string) bool {
		if added[dir] {
			return true
		}
		if err := fsw.Add(dir); err != nil {
			log.Warn("cannot watch directory", "path", dir, "err", err)
			return false
		}
		added[dir] = true
		return true
	}
	for _, d := range dirs {
		d = filepath.Clean(d)
		if add(d) {
			w.dirs[d] = true
		}
	}
	for _, f := range files {
		f = filepath.Clean(f)
		if add(filepath.Dir(f)) {
			w.files[f] = true
		}
	}
	return w, nil
}

// Subscribe returns a channel that receives after relevant changes. At most
// one wake-up is buffered. The returned func unsubscribes.
func (w *Watcher) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch, func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}
}

func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	return w.files[name] || w.dirs[filepath.Dir(name)]
}

func (w *Watcher) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run delivers events until ctx is done, then closes the underlying
// watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) || !w.relevant(ev.Name) {
				continue
			}
			w.log.Debug("state path changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "err", err)
		case <-timer.C:
			w.notify()
		}
	}
}
