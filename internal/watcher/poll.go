package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often the poll backend rescans.
const DefaultPollInterval = 2 * time.Second

// WatchState maps file paths under one root to their modification times.
// A state is built whole by a scan and never edited afterwards.
type WatchState map[string]time.Time

// Diff returns the events that turn old into s, ordered by path.
func (s WatchState) Diff(old WatchState, root Root, at time.Time) []Event {
	var events []Event
	for p, mt := range s {
		prev, ok := old[p]
		switch {
		case !ok:
			events = append(events, Event{Path: p, Type: Created, Root: root, Timestamp: at})
		case !prev.Equal(mt):
			events = append(events, Event{Path: p, Type: Modified, Root: root, Timestamp: at})
		}
	}
	for p := range old {
		if _, ok := s[p]; !ok {
			events = append(events, Event{Path: p, Type: Deleted, Root: root, Timestamp: at})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// PollBackend detects changes by rescanning every root on an interval.
type PollBackend struct {
	roots    Roots
	filter   *Filter
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	states map[Root]WatchState
	primed bool
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	alive      atomic.Bool
	scans      atomic.Int64
	scanErrors atomic.Int64
}

// NewPollBackend creates a poll backend. A non-positive interval uses
// DefaultPollInterval.
func NewPollBackend(roots Roots, filter *Filter, interval time.Duration, log zerolog.Logger) *PollBackend {
	if filter == nil {
		filter = NewDefaultFilter()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollBackend{
		roots:    roots,
		filter:   filter,
		interval: interval,
		log:      log,
		states:   make(map[Root]WatchState),
	}
}

// Name implements Backend.
func (b *PollBackend) Name() string { return "poll" }

// Alive implements Backend.
func (b *PollBackend) Alive() bool { return b.alive.Load() }

// Scans returns the number of completed rescans.
func (b *PollBackend) Scans() int64 { return b.scans.Load() }

// Prime records the current state of every root without emitting
// anything. Changes are measured against it from the first tick on.
func (b *PollBackend) Prime() error {
	states, err := b.scanAll()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.states = states
	b.primed = true
	b.mu.Unlock()
	return nil
}

// Start primes the backend if needed and rescans on every tick.
func (b *PollBackend) Start(ctx context.Context, sink Sink) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrWatcherClosed
	}
	primed := b.primed
	b.mu.Unlock()

	if !primed {
		if err := b.Prime(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.alive.Store(true)
	b.wg.Add(1)
	go b.loop(ctx, sink)
	return nil
}

func (b *PollBackend) loop(ctx context.Context, sink Sink) {
	defer b.wg.Done()
	defer b.alive.Store(false)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range b.Poll() {
				sink(ev)
			}
		}
	}
}

// Poll rescans every root once, replaces the recorded states and returns
// the changes since the previous scan. A root that cannot be scanned
// keeps its previous state.
func (b *PollBackend) Poll() []Event {
	states, err := b.scanAll()
	if err != nil {
		// scanAll only fails wholesale when every root failed.
		b.log.Warn().Err(err).Msg("poll scan failed")
	}

	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []Event
	for _, root := range []Root{RootInput, RootOutput, RootScripts} {
		next, ok := states[root]
		if !ok {
			continue
		}
		events = append(events, next.Diff(b.states[root], root, now)...)
		b.states[root] = next
	}
	b.primed = true
	b.scans.Add(1)
	return events
}

// State returns the recorded state of root.
func (b *PollBackend) State(root Root) WatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[root]
}

// scanAll scans the roots concurrently. Roots that fail are left out of
// the result; an error is returned only when no root could be scanned.
func (b *PollBackend) scanAll() (map[Root]WatchState, error) {
	var (
		mu     sync.Mutex
		states = make(map[Root]WatchState, len(b.roots))
		errs   []error
	)

	var g errgroup.Group
	for root, dir := range b.roots {
		g.Go(func() error {
			st, err := b.scan(dir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.scanErrors.Add(1)
				b.log.Warn().Err(err).Stringer("root", root).Str("dir", dir).Msg("cannot scan folder")
				errs = append(errs, err)
				return nil
			}
			states[root] = st
			return nil
		})
	}
	_ = g.Wait()

	if len(states) == 0 && len(errs) > 0 {
		return states, errors.Join(errs...)
	}
	return states, nil
}

// scan walks dir and records the modification time of every kept file.
// A missing dir scans as empty; unreadable entries below it are skipped.
func (b *PollBackend) scan(dir string) (WatchState, error) {
	state := make(WatchState)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			b.log.Debug().Err(err).Str("path", p).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if b.filter.Ignored(dir, p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Removed between listing and stat.
			return nil
		}
		state[p] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Close stops polling.
func (b *PollBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.alive.Store(false)
	return nil
}

var _ Backend = (*PollBackend)(nil)
