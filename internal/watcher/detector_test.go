package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/foundry/internal/config"
	"github.com/dshills/foundry/internal/eventloop"
	"github.com/rs/zerolog"
)

// fakeBackend delivers events on demand.
type fakeBackend struct {
	name     string
	startErr error
	dies     bool

	mu     sync.Mutex
	sink   Sink
	alive  atomic.Bool
	closed atomic.Bool
}

func (b *fakeBackend) Start(ctx context.Context, sink Sink) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
	b.alive.Store(!b.dies)
	return nil
}

func (b *fakeBackend) Alive() bool  { return b.alive.Load() }
func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Close() error {
	b.closed.Store(true)
	b.alive.Store(false)
	return nil
}

func (b *fakeBackend) emit(ev Event) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	sink(ev)
}

// routed records callback invocations.
type routed struct {
	mu      sync.Mutex
	data    int
	scripts []string
	outputs []string
}

func (r *routed) callbacks() Callbacks {
	return Callbacks{
		OnDataChange: func() {
			r.mu.Lock()
			r.data++
			r.mu.Unlock()
		},
		OnScriptChange: func(path string) {
			r.mu.Lock()
			r.scripts = append(r.scripts, path)
			r.mu.Unlock()
		},
		OnOutputFileChange: func(path string, _ ChangeType) {
			r.mu.Lock()
			r.outputs = append(r.outputs, path)
			r.mu.Unlock()
		},
	}
}

func (r *routed) snapshot() (int, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, append([]string(nil), r.scripts...), append([]string(nil), r.outputs...)
}

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name string
		push *fakeBackend
		want string
	}{
		{"push healthy", &fakeBackend{name: "push"}, "push"},
		{"push fails to start", &fakeBackend{name: "push", startErr: errors.New("no inotify")}, "poll"},
		{"push dies", &fakeBackend{name: "push", dies: true}, "poll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poll := &fakeBackend{name: "poll"}
			got, err := SelectBackend(context.Background(), tt.push, poll, time.Millisecond, func(Event) {}, zerolog.Nop())
			if err != nil {
				t.Fatalf("SelectBackend error = %v", err)
			}
			if got.Name() != tt.want {
				t.Errorf("selected %s, want %s", got.Name(), tt.want)
			}
			if tt.want == "poll" && !tt.push.closed.Load() {
				t.Error("rejected push backend was not closed")
			}
		})
	}

	t.Run("nil push", func(t *testing.T) {
		poll := &fakeBackend{name: "poll"}
		got, err := SelectBackend(context.Background(), nil, poll, time.Millisecond, func(Event) {}, zerolog.Nop())
		if err != nil || got != poll {
			t.Errorf("SelectBackend = %v, %v; want poll", got, err)
		}
	})

	t.Run("poll fails", func(t *testing.T) {
		poll := &fakeBackend{name: "poll", startErr: errors.New("boom")}
		if _, err := SelectBackend(context.Background(), nil, poll, 0, func(Event) {}, zerolog.Nop()); err == nil {
			t.Error("expected error when poll cannot start")
		}
	})
}

func newFakeDetector(t *testing.T, r *routed, opts ...Option) (*Detector, *fakeBackend, Roots) {
	t.Helper()
	base := t.TempDir()
	roots := Roots{
		RootInput:   filepath.Join(base, "input"),
		RootOutput:  filepath.Join(base, "output"),
		RootScripts: filepath.Join(base, "scripts"),
	}
	push := &fakeBackend{name: "push"}
	opts = append([]Option{
		WithPushGrace(0),
		WithBackends(func() Backend { return push }, func() Backend { return &fakeBackend{name: "poll"} }),
	}, opts...)
	d := NewDetector(roots, r.callbacks(), opts...)
	if err := d.Start(context.Background(), eventloop.Inline); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })
	return d, push, roots
}

func TestDetector_CreatesRoots(t *testing.T) {
	d, _, roots := newFakeDetector(t, &routed{})
	for root, dir := range roots {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s folder not created: %v", root, err)
		}
	}
	if d.Mode() != "push" || !d.Running() {
		t.Errorf("Mode = %q, Running = %v", d.Mode(), d.Running())
	}
}

func TestDetector_Routing(t *testing.T) {
	r := &routed{}
	_, push, roots := newFakeDetector(t, r)

	in := filepath.Join(roots[RootInput], "a.csv")
	out := filepath.Join(roots[RootOutput], "chart.png")
	gone := filepath.Join(roots[RootOutput], "old.png")
	script := filepath.Join(roots[RootScripts], "report.py")
	removed := filepath.Join(roots[RootScripts], "dead.py")

	push.emit(Event{Path: in, Type: Modified, Root: RootInput})
	push.emit(Event{Path: out, Type: Created, Root: RootOutput})
	push.emit(Event{Path: gone, Type: Deleted, Root: RootOutput})
	push.emit(Event{Path: script, Type: Modified, Root: RootScripts})
	push.emit(Event{Path: removed, Type: Deleted, Root: RootScripts})

	data, scripts, outputs := r.snapshot()
	if data != 3 {
		t.Errorf("data changes = %d, want 3", data)
	}
	if len(scripts) != 1 || scripts[0] != script {
		t.Errorf("script changes = %v, want [%s]", scripts, script)
	}
	if len(outputs) != 1 || outputs[0] != out {
		t.Errorf("output changes = %v, want [%s]", outputs, out)
	}
}

func TestDetector_DebouncesBurst(t *testing.T) {
	r := &routed{}
	d, push, roots := newFakeDetector(t, r)

	script := filepath.Join(roots[RootScripts], "report.py")
	push.emit(Event{Path: script, Type: Created, Root: RootScripts})
	push.emit(Event{Path: script, Type: Modified, Root: RootScripts})
	push.emit(Event{Path: script, Type: Modified, Root: RootScripts})

	_, scripts, _ := r.snapshot()
	if len(scripts) != 1 {
		t.Errorf("script changes = %d, want 1", len(scripts))
	}
	st := d.Stats()
	if st.Received != 3 || st.Debounced != 2 || st.Delivered != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestDetector_RejectedPost(t *testing.T) {
	r := &routed{}
	base := t.TempDir()
	push := &fakeBackend{name: "push"}
	d := NewDetector(Roots{RootInput: filepath.Join(base, "input")}, r.callbacks(),
		WithPushGrace(0),
		WithBackends(func() Backend { return push }, nil),
	)

	loop := eventloop.New()
	loop.Close()
	if err := d.Start(context.Background(), loop); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	push.emit(Event{Path: filepath.Join(base, "input", "x"), Type: Created, Root: RootInput})
	if st := d.Stats(); st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
	if data, _, _ := r.snapshot(); data != 0 {
		t.Error("rejected event was routed")
	}
}

func TestDetector_StartTwiceAndStop(t *testing.T) {
	d, push, _ := newFakeDetector(t, &routed{})
	if err := d.Start(context.Background(), eventloop.Inline); err != nil {
		t.Errorf("second Start error = %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop error = %v", err)
	}
	if !push.closed.Load() {
		t.Error("backend not closed on Stop")
	}
	if d.Mode() != "" || d.Running() {
		t.Error("detector still running after Stop")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop error = %v", err)
	}
	if err := d.Start(context.Background(), nil); err == nil {
		t.Error("Start with nil loop should fail")
	}
}

func TestDetector_PollingEndToEnd(t *testing.T) {
	base := t.TempDir()
	layout := config.Layout{
		Root:    base,
		Input:   filepath.Join(base, "input"),
		Output:  filepath.Join(base, "output"),
		Scripts: filepath.Join(base, "scripts"),
	}
	r := &routed{}
	cfg := config.Default().Watcher
	cfg.ForcePoll = true
	cfg.PollInterval = config.Duration(20 * time.Millisecond)

	d := NewDetector(LayoutRoots(layout), r.callbacks(), ConfigOptions(cfg)...)
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	if err := d.Start(ctx, loop); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	defer d.Stop()
	if d.Mode() != "poll" {
		t.Fatalf("Mode = %q, want poll", d.Mode())
	}

	script := filepath.Join(layout.Scripts, "report.py")
	writeFile(t, script, "print(1)")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, scripts, _ := r.snapshot(); len(scripts) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, scripts, _ := r.snapshot(); len(scripts) != 1 || scripts[0] != script {
		t.Errorf("script changes = %v", scripts)
	}
}
