package watcher

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// Default debounce settings.
const (
	DefaultDebounceWindow = 500 * time.Millisecond
	DefaultDebounceExpiry = 10 * time.Second
	DefaultScriptGate     = 3 * time.Second
)

// Debouncer lets the first event for a key through and drops repeats
// that arrive within the window. Bookkeeping for keys not seen within
// the expiry is discarded on every call, so memory stays bounded over a
// long session.
type Debouncer struct {
	window time.Duration
	expiry time.Duration
	now    func() time.Time
	key    func(string) string

	mu   sync.Mutex
	last map[string]time.Time
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DebounceOption {
	return func(d *Debouncer) {
		if now != nil {
			d.now = now
		}
	}
}

// WithKey normalizes keys before comparison.
func WithKey(fn func(string) string) DebounceOption {
	return func(d *Debouncer) {
		if fn != nil {
			d.key = fn
		}
	}
}

// NewDebouncer creates a debouncer. An expiry shorter than the window is
// raised to the window.
func NewDebouncer(window, expiry time.Duration, opts ...DebounceOption) *Debouncer {
	if expiry < window {
		expiry = window
	}
	d := &Debouncer{
		window: window,
		expiry: expiry,
		now:    time.Now,
		key:    func(s string) string { return s },
		last:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Allow reports whether an event for key should be emitted now.
func (d *Debouncer) Allow(key string) bool {
	k := d.key(key)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.last[k]; ok && now.Sub(t) < d.window {
		return false
	}
	d.last[k] = now

	for p, t := range d.last {
		if now.Sub(t) >= d.expiry {
			delete(d.last, p)
		}
	}
	return true
}

// Tracked returns the number of keys with live bookkeeping.
func (d *Debouncer) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// Reset forgets every key.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.last)
}

// ScriptGate collapses repeated script-change notifications for the same
// script. Paths compare case-insensitively with forward slashes, so one
// logical edit reported under different spellings passes once.
type ScriptGate struct {
	d *Debouncer
}

// NewScriptGate creates a gate with the given window and a bookkeeping
// expiry of DefaultDebounceExpiry.
func NewScriptGate(window time.Duration, opts ...DebounceOption) *ScriptGate {
	opts = append([]DebounceOption{WithKey(ScriptKey)}, opts...)
	return &ScriptGate{d: NewDebouncer(window, DefaultDebounceExpiry, opts...)}
}

// Allow reports whether a change to path should be announced.
func (g *ScriptGate) Allow(path string) bool {
	return g.d.Allow(path)
}

// ScriptKey normalizes a path for script-change comparison. Case is
// folded rather than lowered so non-ASCII names compare like the file
// systems that ignore case.
func ScriptKey(path string) string {
	return cases.Fold().String(NormalizePath(path))
}

// NormalizePath returns path with forward slashes on every platform.
func NormalizePath(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")
}
