package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/foundry/internal/config"
	"github.com/dshills/foundry/internal/eventloop"
	"github.com/rs/zerolog"
)

// DefaultPushGrace is how long the push backend gets to prove it is
// alive before the detector falls back to polling.
const DefaultPushGrace = 100 * time.Millisecond

// Detector watches the project folders and routes changes to callbacks on
// the consumer's event loop.
type Detector struct {
	roots     Roots
	callbacks Callbacks
	filter    *Filter
	debounce  *Debouncer
	log       zerolog.Logger

	pushGrace    time.Duration
	pollInterval time.Duration
	forcePoll    bool
	newPush      func() Backend
	newPoll      func() Backend

	mu        sync.Mutex
	backend   Backend
	cancel    context.CancelFunc
	startTime time.Time

	// loopMu is separate from mu so delivery never waits on Start.
	loopMu sync.RWMutex
	loop   eventloop.Loop

	received  atomic.Int64
	debounced atomic.Int64
	delivered atomic.Int64
	rejected  atomic.Int64
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the detector logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Detector) {
		d.log = log
	}
}

// WithFilter replaces the ignore filter.
func WithFilter(f *Filter) Option {
	return func(d *Detector) {
		if f != nil {
			d.filter = f
		}
	}
}

// WithDebouncer replaces the per-path debouncer.
func WithDebouncer(db *Debouncer) Option {
	return func(d *Detector) {
		if db != nil {
			d.debounce = db
		}
	}
}

// WithPollInterval sets the poll backend interval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithPushGrace sets the push liveness probe delay.
func WithPushGrace(grace time.Duration) Option {
	return func(d *Detector) {
		if grace >= 0 {
			d.pushGrace = grace
		}
	}
}

// WithForcePoll skips OS notifications and always polls.
func WithForcePoll(force bool) Option {
	return func(d *Detector) {
		d.forcePoll = force
	}
}

// WithBackends replaces the backend constructors. A nil push constructor
// means polling only.
func WithBackends(push, poll func() Backend) Option {
	return func(d *Detector) {
		d.newPush = push
		if poll != nil {
			d.newPoll = poll
		}
	}
}

// ConfigOptions translates watcher settings into detector options.
func ConfigOptions(c config.WatcherConfig) []Option {
	return []Option{
		WithPollInterval(c.PollInterval.Std()),
		WithPushGrace(c.PushGrace.Std()),
		WithForcePoll(c.ForcePoll),
		WithDebouncer(NewDebouncer(c.Debounce.Std(), c.DebounceExpiry.Std())),
	}
}

// LayoutRoots returns the watched roots of a project layout.
func LayoutRoots(l config.Layout) Roots {
	return Roots{
		RootInput:   l.Input,
		RootOutput:  l.Output,
		RootScripts: l.Scripts,
	}
}

// NewDetector creates a detector for roots.
func NewDetector(roots Roots, callbacks Callbacks, opts ...Option) *Detector {
	d := &Detector{
		roots:        roots,
		callbacks:    callbacks,
		filter:       NewDefaultFilter(),
		debounce:     NewDebouncer(DefaultDebounceWindow, DefaultDebounceExpiry),
		log:          zerolog.Nop(),
		pushGrace:    DefaultPushGrace,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.newPush == nil && !d.forcePoll {
		d.newPush = func() Backend { return NewPushBackend(d.roots, d.filter, d.log) }
	}
	if d.newPoll == nil {
		d.newPoll = func() Backend { return NewPollBackend(d.roots, d.filter, d.pollInterval, d.log) }
	}
	return d
}

// Start creates any missing root folders, picks a backend and begins
// delivering routed changes through loop. Starting a running detector
// does nothing.
func (d *Detector) Start(ctx context.Context, loop eventloop.Loop) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend != nil {
		return nil
	}
	if loop == nil {
		return errors.New("watcher: nil event loop")
	}

	for _, dir := range d.roots {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watched folder: %w", err)
		}
	}

	d.loopMu.Lock()
	d.loop = loop
	d.loopMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	var push Backend
	if !d.forcePoll && d.newPush != nil {
		push = d.newPush()
	}
	backend, err := SelectBackend(ctx, push, d.newPoll(), d.pushGrace, d.receive, d.log)
	if err != nil {
		cancel()
		return err
	}

	d.backend = backend
	d.cancel = cancel
	d.startTime = time.Now()
	d.log.Info().Str("mode", backend.Name()).Msg("file watcher started")
	return nil
}

// SelectBackend starts push and keeps it if it is still alive after
// grace. Otherwise push is closed and poll is started instead. A nil
// push goes straight to poll.
func SelectBackend(ctx context.Context, push, poll Backend, grace time.Duration, sink Sink, log zerolog.Logger) (Backend, error) {
	if push != nil {
		if err := push.Start(ctx, sink); err != nil {
			log.Warn().Err(err).Msg("native file notifications unavailable, polling instead")
			_ = push.Close()
		} else if waitGrace(ctx, grace) && push.Alive() {
			_ = poll.Close()
			return push, nil
		} else {
			log.Warn().Err(ErrNotAlive).Msg("native file notifications did not stay up, polling instead")
			_ = push.Close()
		}
	}

	if err := poll.Start(ctx, sink); err != nil {
		return nil, fmt.Errorf("start polling: %w", err)
	}
	return poll, nil
}

// waitGrace sleeps for grace unless ctx ends first.
func waitGrace(ctx context.Context, grace time.Duration) bool {
	if grace <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// receive runs on backend goroutines. It must never block.
func (d *Detector) receive(ev Event) {
	d.received.Add(1)
	if !d.debounce.Allow(ev.Path) {
		d.debounced.Add(1)
		return
	}

	d.loopMu.RLock()
	loop := d.loop
	d.loopMu.RUnlock()
	if loop == nil {
		return
	}

	if loop.Post(func() { d.route(ev) }) {
		d.delivered.Add(1)
	} else {
		d.rejected.Add(1)
	}
}

// route raises the callbacks for one change.
func (d *Detector) route(ev Event) {
	d.log.Debug().
		Stringer("type", ev.Type).
		Stringer("root", ev.Root).
		Str("path", ev.Path).
		Msg("file change")

	cb := d.callbacks
	switch ev.Root {
	case RootInput:
		if cb.OnDataChange != nil {
			cb.OnDataChange()
		}
	case RootOutput:
		if cb.OnDataChange != nil {
			cb.OnDataChange()
		}
		if (ev.Type == Created || ev.Type == Modified) && cb.OnOutputFileChange != nil {
			cb.OnOutputFileChange(ev.Path, ev.Type)
		}
	case RootScripts:
		if (ev.Type == Created || ev.Type == Modified) && cb.OnScriptChange != nil {
			cb.OnScriptChange(ev.Path)
		}
	}
}

// Stop stops the active backend. The detector can be started again.
func (d *Detector) Stop() error {
	d.mu.Lock()
	backend := d.backend
	cancel := d.cancel
	d.backend = nil
	d.cancel = nil
	d.mu.Unlock()

	if backend == nil {
		return nil
	}
	cancel()
	err := backend.Close()
	d.log.Info().Str("mode", backend.Name()).Msg("file watcher stopped")
	return err
}

// Mode returns the active backend name, or "" when stopped.
func (d *Detector) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend == nil {
		return ""
	}
	return d.backend.Name()
}

// Running reports whether the detector has an active backend.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend != nil
}

// Stats returns detector counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	mode := ""
	if d.backend != nil {
		mode = d.backend.Name()
	}
	start := d.startTime
	d.mu.Unlock()

	return Stats{
		Mode:      mode,
		Received:  d.received.Load(),
		Debounced: d.debounced.Load(),
		Delivered: d.delivered.Load(),
		Rejected:  d.rejected.Load(),
		StartTime: start,
	}
}
