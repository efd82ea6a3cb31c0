// Package eventloop provides a single-threaded loop that other goroutines
// hand work to.
//
// Change notifications arrive on watcher goroutines, but the code that
// reacts to them expects to run on one consumer goroutine. Post is safe to
// call from any goroutine and never blocks; Run executes posted functions
// one at a time, in posting order, on the goroutine that calls it.
package eventloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when Run is called on a loop that is running.
var ErrAlreadyRunning = errors.New("event loop already running")

// Loop accepts work for a single consumer goroutine.
type Loop interface {
	// Post schedules fn. It reports false if the loop no longer accepts work.
	Post(fn func()) bool
}

// Stats reports loop counters.
type Stats struct {
	Posted   uint64
	Executed uint64
	Panicked uint64
	Rejected uint64
	Pending  int
}

// EventLoop is an unbounded FIFO of functions drained by Run.
type EventLoop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	running atomic.Bool

	log zerolog.Logger

	posted   atomic.Uint64
	executed atomic.Uint64
	panicked atomic.Uint64
	rejected atomic.Uint64
}

// Option configures an EventLoop.
type Option func(*EventLoop)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(log zerolog.Logger) Option {
	return func(l *EventLoop) {
		l.log = log
	}
}

// New creates an event loop. It accepts posts immediately; they run once
// Run is called.
func New(opts ...Option) *EventLoop {
	l := &EventLoop{
		wake: make(chan struct{}, 1),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post appends fn to the queue.
func (l *EventLoop) Post(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.rejected.Add(1)
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	l.posted.Add(1)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue until ctx is cancelled or Close is called and the
// queue is empty. Panics in posted functions are recovered and logged.
func (l *EventLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	for {
		batch, closed := l.take()
		for _, fn := range batch {
			if ctx.Err() != nil {
				l.requeue(batch)
				return ctx.Err()
			}
			batch = batch[1:]
			l.execute(fn)
		}
		if closed {
			if l.Pending() == 0 {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// take swaps out the current queue.
func (l *EventLoop) take() ([]func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch, l.closed
}

// requeue puts unexecuted work back at the front of the queue.
func (l *EventLoop) requeue(rest []func()) {
	if len(rest) == 0 {
		return
	}
	l.mu.Lock()
	l.queue = append(rest, l.queue...)
	l.mu.Unlock()
}

func (l *EventLoop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("posted function panicked")
		}
	}()
	fn()
	l.executed.Add(1)
}

// Close stops accepting posts. Run returns after draining what was
// already queued.
func (l *EventLoop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued functions.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stats returns the loop counters.
func (l *EventLoop) Stats() Stats {
	return Stats{
		Posted:   l.posted.Load(),
		Executed: l.executed.Load(),
		Panicked: l.panicked.Load(),
		Rejected: l.rejected.Load(),
		Pending:  l.Pending(),
	}
}

// Func adapts a plain function to Loop by running posted work inline.
// It is meant for tests and for consumers without a loop of their own.
type Func func(fn func())

// Post calls f with fn.
func (f Func) Post(fn func()) bool {
	f(fn)
	return true
}

// Inline runs posted functions immediately on the posting goroutine.
var Inline Loop = Func(func(fn func()) { fn() })
