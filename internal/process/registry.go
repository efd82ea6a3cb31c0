package process

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultGrace is how long Stop waits between terminate and kill.
const DefaultGrace = 2 * time.Second

// Info is a snapshot of one registered process.
type Info struct {
	PID     int           `json:"pid"`
	ID      string        `json:"id"`
	Path    string        `json:"path"`
	Kind    string        `json:"kind"`
	Status  string        `json:"status"`
	Started time.Time     `json:"started"`
	Uptime  time.Duration `json:"uptime"`
}

// Registry tracks every process the manager owns.
type Registry struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	onRemove []func(*Handle)
	closed   bool

	grace time.Duration
	log   zerolog.Logger

	// signalPID delivers a terminate request to an untracked pid.
	signalPID func(pid int) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithGrace sets the terminate-to-kill grace period.
func WithGrace(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithSignaler replaces the function used to stop untracked pids.
func WithSignaler(fn func(pid int) error) Option {
	return func(r *Registry) {
		if fn != nil {
			r.signalPID = fn
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handles:   make(map[string]*Handle),
		grace:     DefaultGrace,
		log:       zerolog.Nop(),
		signalPID: terminatePID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Grace returns the terminate-to-kill grace period.
func (r *Registry) Grace() time.Duration {
	return r.grace
}

// OnRemove adds a hook called once for every handle that leaves the
// registry, whether it was stopped or exited on its own. Hooks run
// without the registry lock held.
func (r *Registry) OnRemove(fn func(*Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

// Spawn starts cmd and registers the resulting handle.
func (r *Registry) Spawn(cmd *exec.Cmd, scriptPath string, kind Kind) (*Handle, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrRegistryClosed
	}

	h := NewHandle(cmd, scriptPath, kind)
	if err := h.Start(); err != nil {
		return nil, err
	}
	if err := r.Register(h); err != nil {
		_ = h.Shutdown(r.grace)
		return nil, err
	}
	return h, nil
}

// Register adds a started handle and begins watching for its exit.
func (r *Registry) Register(h *Handle) error {
	if h.Cmd.Process == nil {
		return ErrNotStarted
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := r.handles[h.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, h.ID)
	}
	r.handles[h.ID] = h
	r.mu.Unlock()

	r.log.Debug().
		Int("pid", h.PID()).
		Str("path", h.ScriptPath).
		Stringer("kind", h.Kind).
		Msg("process registered")

	go r.monitor(h)
	return nil
}

// monitor removes the handle once its process exits.
func (r *Registry) monitor(h *Handle) {
	<-h.Done()
	r.Unregister(h.ID)
}

// Unregister removes a handle. Removing an unknown id does nothing.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	h, ok := r.handles[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.handles, id)
	hooks := make([]func(*Handle), len(r.onRemove))
	copy(hooks, r.onRemove)
	r.mu.Unlock()

	r.log.Debug().Int("pid", h.PID()).Str("path", h.ScriptPath).Msg("process unregistered")

	for _, fn := range hooks {
		r.runHook(fn, h)
	}
}

func (r *Registry) runHook(fn func(*Handle), h *Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("path", h.ScriptPath).Msg("removal hook panicked")
		}
	}()
	fn(h)
}

// Get returns the handle with the given id, or nil.
func (r *Registry) Get(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}

// FindPID returns the handle whose process has pid, or nil.
func (r *Registry) FindPID(pid int) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		if h.PID() == pid {
			return h
		}
	}
	return nil
}

// Count returns the number of registered handles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// List drops handles whose process has exited, then returns the rest
// ordered by start time.
func (r *Registry) List() []Info {
	r.mu.Lock()
	var exited []string
	live := make([]*Handle, 0, len(r.handles))
	for id, h := range r.handles {
		if h.HasExited() {
			exited = append(exited, id)
			continue
		}
		live = append(live, h)
	}
	r.mu.Unlock()

	for _, id := range exited {
		r.Unregister(id)
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].Created.Equal(live[j].Created) {
			return live[i].ID < live[j].ID
		}
		return live[i].Created.Before(live[j].Created)
	})

	infos := make([]Info, len(live))
	for i, h := range live {
		infos[i] = Info{
			PID:     h.PID(),
			ID:      h.ID,
			Path:    h.ScriptPath,
			Kind:    h.Kind.String(),
			Status:  h.State().String(),
			Started: h.Created,
			Uptime:  h.Runtime(),
		}
	}
	return infos
}

// Stop stops the process with the given pid. A registered process is
// shut down and removed; any other pid gets a best-effort terminate
// request. A tracked process that already exited is only removed. Stop
// reports whether the process was stopped or signalled.
func (r *Registry) Stop(pid int) bool {
	if pid <= 0 {
		return false
	}

	if h := r.FindPID(pid); h != nil {
		if !h.IsRunning() {
			r.Unregister(h.ID)
			return false
		}
		if err := h.Shutdown(r.grace); err != nil {
			r.log.Warn().Err(err).Int("pid", pid).Msg("stop did not complete cleanly")
		}
		r.Unregister(h.ID)
		return true
	}

	if err := r.signalPID(pid); err != nil {
		r.log.Debug().Err(err).Int("pid", pid).Msg("terminate untracked pid failed")
		return false
	}
	return true
}

// StopAll stops every registered process concurrently and returns how
// many were registered when it was called. A failure to stop one process
// does not prevent the others from being stopped.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	snapshot := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		snapshot = append(snapshot, h)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, h := range snapshot {
		g.Go(func() error {
			err := h.Shutdown(r.grace)
			r.Unregister(h.ID)
			if err != nil {
				return fmt.Errorf("stop %s (pid %d): %w", h.ScriptPath, h.PID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Warn().Err(err).Msg("stop all finished with errors")
	}

	if len(snapshot) > 0 {
		r.log.Info().Int("count", len(snapshot)).Msg("stopped processes")
	}
	return len(snapshot)
}

// Close stops everything and refuses further registrations.
func (r *Registry) Close() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.StopAll()
}
