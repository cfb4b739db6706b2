package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ignoreFileName is the per-directory ignore file whose changes are
// reported as OpIgnoreChange.
const ignoreFileName = ".gitignore"

// Watcher reports changes under its roots as debounced batches.
type Watcher struct {
	fs        *fsnotify.Watcher
	filter    Filter
	debouncer *Debouncer
	opts      Options

	mu      sync.RWMutex
	roots   []string
	stopped bool

	batches chan []FileEvent
	errors  chan error
	stopCh  chan struct{}

	droppedErrors atomic.Uint64
}

// New creates a watcher. Call Add for each root, then Run.
func New(filter Filter, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:        fsw,
		filter:    filter,
		debouncer: NewDebouncer(opts.Debounce),
		opts:      opts,
		batches:   make(chan []FileEvent, opts.BatchBuffer),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	go w.forward()
	return w, nil
}

// Add watches root and every accepted directory beneath it.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", abs)
	}

	w.mu.Lock()
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	if err := w.addRecursive(abs, abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	slog.Debug("watch_root_added", slog.String("root", abs))
	return nil
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.roots...)
}

// Run processes fsnotify events until ctx ends or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Batches returns the channel of debounced batches. It is closed by Stop.
func (w *Watcher) Batches() <-chan []FileEvent {
	return w.batches
}

// Errors returns non-fatal watch errors. The watcher keeps running.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the fsnotify watcher and closes Batches. Safe to call
// multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	return w.fs.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	root := w.rootOf(event.Name)
	if root == "" || event.Name == root {
		return
	}
	if event.Op&fsnotify.Chmod == event.Op {
		return
	}

	now := time.Now()
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// The path is gone; whether it was a directory is unknowable here.
		w.debouncer.Add(FileEvent{Path: event.Name, Root: root, Operation: OpDelete, Timestamp: now})
		return
	}

	info, err := os.Lstat(event.Name)
	if err != nil {
		w.debouncer.Add(FileEvent{Path: event.Name, Root: root, Operation: OpDelete, Timestamp: now})
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create == 0 || !w.filter.AcceptDir(root, event.Name) {
			return
		}
		if err := w.addRecursive(root, event.Name); err != nil {
			w.emitError(err)
		}
		w.debouncer.Add(FileEvent{Path: event.Name, Root: root, Operation: OpCreate, IsDir: true, Timestamp: now})
		return
	}

	if filepath.Base(event.Name) == ignoreFileName {
		dir := filepath.Dir(event.Name)
		w.filter.Invalidate(root, dir)
		w.debouncer.Add(FileEvent{Path: dir, Root: root, Operation: OpIgnoreChange, IsDir: true, Timestamp: now})
		return
	}

	if !w.filter.AcceptFile(root, event.Name) {
		return
	}
	op := OpModify
	if event.Op&fsnotify.Create != 0 {
		op = OpCreate
	}
	w.debouncer.Add(FileEvent{Path: event.Name, Root: root, Operation: op, Timestamp: now})
}

// rootOf returns the longest watched root containing path.
func (w *Watcher) rootOf(path string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	best := ""
	for _, r := range w.roots {
		if (path == r || strings.HasPrefix(path, r+string(filepath.Separator))) && len(r) > len(best) {
			best = r
		}
	}
	return best
}

func (w *Watcher) addRecursive(root, start string) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !w.filter.AcceptDir(root, path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) forward() {
	defer close(w.batches)
	for batch := range w.debouncer.Output() {
		select {
		case w.batches <- batch:
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
		n := w.droppedErrors.Add(1)
		slog.Warn("watch_error_dropped", slog.String("error", err.Error()), slog.Uint64("dropped", n))
	}
}
