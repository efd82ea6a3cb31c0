package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// PushBackend delivers OS file notifications through fsnotify. Every
// directory under each root is watched, and directories created later
// are added as they appear.
type PushBackend struct {
	roots  Roots
	filter *Filter
	log    zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]bool
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup

	alive atomic.Bool
}

// NewPushBackend creates a push backend for roots.
func NewPushBackend(roots Roots, filter *Filter, log zerolog.Logger) *PushBackend {
	if filter == nil {
		filter = NewDefaultFilter()
	}
	return &PushBackend{
		roots:   roots,
		filter:  filter,
		log:     log,
		dirs:    make(map[string]bool),
		closeCh: make(chan struct{}),
	}
}

// Name implements Backend.
func (b *PushBackend) Name() string { return "push" }

// Alive implements Backend.
func (b *PushBackend) Alive() bool { return b.alive.Load() }

// Start subscribes to every root and begins delivering events.
func (b *PushBackend) Start(ctx context.Context, sink Sink) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrWatcherClosed
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	b.watcher = fsw
	b.mu.Unlock()

	for _, dir := range b.roots {
		if err := b.watchRecursive(dir, nil); err != nil {
			_ = b.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	b.alive.Store(true)
	b.wg.Add(1)
	go b.processLoop(ctx, sink)
	return nil
}

// watchRecursive watches dir and every directory below it that the filter
// keeps. When emit is non-nil, files found along the way are reported as
// created, covering files written before the watch was in place.
func (b *PushBackend) watchRecursive(dir string, emit func(path string)) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	root, _ := b.roots.Of(dir)
	rootDir := b.roots[root]

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.log.Debug().Err(err).Str("path", p).Msg("skipping unreadable path")
			return nil
		}
		if b.filter.Ignored(rootDir, p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if emit != nil {
				emit(p)
			}
			return nil
		}
		return b.add(p)
	})
}

func (b *PushBackend) add(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrWatcherClosed
	}
	if b.dirs[dir] {
		return nil
	}
	if err := b.watcher.Add(dir); err != nil {
		return err
	}
	b.dirs[dir] = true
	return nil
}

// forget drops dir and everything below it from the watched set.
func (b *PushBackend) forget(dir string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirs[dir] {
		return false
	}
	for d := range b.dirs {
		if within(dir, d) {
			delete(b.dirs, d)
		}
	}
	return true
}

// WatchedDirs returns the number of directories being watched.
func (b *PushBackend) WatchedDirs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirs)
}

func (b *PushBackend) processLoop(ctx context.Context, sink Sink) {
	defer b.wg.Done()
	defer b.alive.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closeCh:
			return

		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handle(ev, sink)

		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn().Err(err).Msg("file notification error")
		}
	}
}

// handle converts one fsnotify event. Directory events are not reported;
// a new directory is watched and the files already inside it are
// reported as created.
func (b *PushBackend) handle(ev fsnotify.Event, sink Sink) {
	root, ok := b.roots.Of(ev.Name)
	if !ok || b.filter.Ignored(b.roots[root], ev.Name) {
		return
	}

	now := time.Now()
	emit := func(path string, change ChangeType) {
		sink(Event{Path: path, Type: change, Root: root, Timestamp: now})
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Already gone again.
			return
		}
		if info.IsDir() {
			if err := b.watchRecursive(ev.Name, func(p string) { emit(p, Created) }); err != nil {
				b.log.Warn().Err(err).Str("path", ev.Name).Msg("cannot watch new directory")
			}
			return
		}
		emit(ev.Name, Created)

	case ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return
		}
		emit(ev.Name, Modified)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if b.forget(ev.Name) {
			return
		}
		emit(ev.Name, Deleted)
	}
}

// Close stops delivery and releases the OS watch.
func (b *PushBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	fsw := b.watcher
	b.mu.Unlock()

	b.wg.Wait()
	b.alive.Store(false)
	if fsw == nil {
		return nil
	}
	return fsw.Close()
}

var _ Backend = (*PushBackend)(nil)
