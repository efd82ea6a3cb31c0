package watcher

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDebouncer_Window(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(500*time.Millisecond, 10*time.Second, WithClock(clock.Now))

	if !d.Allow("a.py") {
		t.Fatal("first event should pass")
	}
	clock.Advance(100 * time.Millisecond)
	if d.Allow("a.py") {
		t.Error("repeat inside window should be dropped")
	}
	if !d.Allow("b.py") {
		t.Error("other key should pass")
	}
	clock.Advance(400 * time.Millisecond)
	if !d.Allow("a.py") {
		t.Error("event at window edge should pass")
	}
}

func TestDebouncer_ExpiryPrunes(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(500*time.Millisecond, 10*time.Second, WithClock(clock.Now))

	for _, k := range []string{"a", "b", "c"} {
		d.Allow(k)
	}
	if got := d.Tracked(); got != 3 {
		t.Fatalf("Tracked = %d, want 3", got)
	}

	clock.Advance(11 * time.Second)
	d.Allow("d")
	if got := d.Tracked(); got != 1 {
		t.Errorf("Tracked after expiry = %d, want 1", got)
	}

	d.Reset()
	if got := d.Tracked(); got != 0 {
		t.Errorf("Tracked after Reset = %d, want 0", got)
	}
}

func TestDebouncer_ExpiryRaisedToWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(time.Second, time.Millisecond, WithClock(clock.Now))

	d.Allow("a")
	clock.Advance(500 * time.Millisecond)
	if d.Allow("a") {
		t.Error("short expiry must not shorten the window")
	}
}

func TestScriptGate(t *testing.T) {
	clock := newFakeClock()
	g := NewScriptGate(3*time.Second, WithClock(clock.Now))

	if !g.Allow(`C:\Proj\Scripts\Report.py`) {
		t.Fatal("first change should pass")
	}
	clock.Advance(time.Second)
	if g.Allow("c:/proj/scripts/report.py") {
		t.Error("same script with other spelling should be gated")
	}
	clock.Advance(2 * time.Second)
	if !g.Allow("C:/PROJ/scripts/report.py") {
		t.Error("change after gate window should pass")
	}
}

func TestScriptKey(t *testing.T) {
	if got := ScriptKey(`A\B/C.PY`); got != "a/b/c.py" {
		t.Errorf("ScriptKey = %q, want a/b/c.py", got)
	}
}

func TestScriptKey_FoldsUnicode(t *testing.T) {
	if ScriptKey("/Daten/STRASSE.py") != ScriptKey("/daten/strasse.py") {
		t.Error("ASCII case should fold")
	}
	if ScriptKey("/p/ÄRGER.py") != ScriptKey("/p/ärger.py") {
		t.Error("non-ASCII case should fold")
	}
}
