// Package webapp manages scripts that start a local web server.
//
// At most one session exists per script path. Starting a script that
// already has a session first retires the old one, then launches the new
// server and waits for it to announce its URL.
package webapp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/foundry/internal/process"
	"github.com/dshills/foundry/internal/script"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultURLTimeout bounds how long Start waits for the URL announcement.
const DefaultURLTimeout = 30 * time.Second

// drainWait bounds how long a failed start waits for remaining output.
const drainWait = 500 * time.Millisecond

// maxCaptured caps the output kept for diagnostics while waiting.
const maxCaptured = 256 * 1024

// Session is a running web-app server.
type Session struct {
	// Path is the absolute script path and the session key.
	Path string `json:"path"`
	// URL is the address the server announced.
	URL string `json:"url"`
	// PID is the server process id.
	PID int `json:"pid"`
	// Started is when the server was launched.
	Started time.Time `json:"started"`

	handle *process.Handle
}

// Manager owns web-app sessions.
type Manager struct {
	reg     *process.Registry
	log     zerolog.Logger
	command CommandFunc
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	keyLocks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithCommand sets how server commands are built.
func WithCommand(fn CommandFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.command = fn
		}
	}
}

// WithURLTimeout sets how long to wait for the URL announcement.
func WithURLTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a manager that registers servers in reg. Sessions
// are dropped automatically when reg removes their process.
func NewManager(reg *process.Registry, opts ...Option) *Manager {
	m := &Manager{
		reg:      reg,
		log:      zerolog.Nop(),
		command:  FrameworkCommand(script.NewResolver("").InterpreterPath(), 0, nil),
		timeout:  DefaultURLTimeout,
		sessions: make(map[string]*Session),
		keyLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	reg.OnRemove(m.forget)
	return m
}

// forget drops the session owned by h, if it is still current.
func (m *Manager) forget(h *process.Handle) {
	if h.Kind != process.KindWebApp {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[h.ScriptPath]; ok && s.handle == h {
		delete(m.sessions, h.ScriptPath)
	}
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[key] = l
	}
	return l
}

// Start launches the server for path, replacing any existing session for
// the same path, and waits for its URL.
func (m *Manager) Start(ctx context.Context, path, cwd string) script.Result {
	key, err := filepath.Abs(path)
	if err != nil {
		return script.LaunchFailed(path, err)
	}

	l := m.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if m.Stop(key) {
		m.log.Info().Str("path", key).Msg("replaced running web app")
	}

	cmd, err := m.command(key, cwd)
	if err != nil {
		return script.LaunchFailed(key, err)
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, "PYTHONUNBUFFERED=1")

	pr, pw, err := os.Pipe()
	if err != nil {
		return script.LaunchFailed(key, fmt.Errorf("create output pipe: %w", err))
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	h := process.NewHandle(cmd, key, process.KindWebApp)
	if err := h.Start(); err != nil {
		pw.Close()
		pr.Close()
		return script.LaunchFailed(key, err)
	}
	pw.Close()

	out := newWatcher(pr, m.log.With().Str("path", key).Logger())
	go out.run()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	var reason string
	select {
	case url := <-out.found:
		return m.adopt(h, key, url, out.captured())
	case <-out.eof:
		reason = "web app closed its output before announcing a URL"
	case <-h.Done():
		reason = fmt.Sprintf("web app exited with code %d before announcing a URL", h.ExitCode())
	case <-timer.C:
		reason = fmt.Sprintf("web app did not announce a URL within %s", m.timeout)
	case <-ctx.Done():
		reason = fmt.Sprintf("web app start cancelled: %v", ctx.Err())
	}

	if err := h.Shutdown(m.reg.Grace()); err != nil {
		m.log.Warn().Err(err).Str("path", key).Msg("failed to stop web app after start failure")
	}
	m.log.Warn().Str("path", key).Msg(reason)

	// Let the reader pick up whatever the process wrote before it died.
	select {
	case <-out.eof:
	case <-time.After(drainWait):
	}

	r := script.Failed(key, script.FailureStart, reason)
	r.Stdout = out.captured()
	r.ExitCode = h.ExitCode()
	return r
}

// adopt records h as the session for key and registers it.
func (m *Manager) adopt(h *process.Handle, key, url, output string) script.Result {
	s := &Session{Path: key, URL: url, PID: h.PID(), Started: h.Created, handle: h}

	m.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()

	if err := m.reg.Register(h); err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		_ = h.Shutdown(m.reg.Grace())
		return script.LaunchFailed(key, err)
	}

	m.log.Info().Str("path", key).Str("url", url).Int("pid", h.PID()).Msg("web app started")

	r := script.Completed(key, output, "", 0)
	r.URL = url
	r.PID = h.PID()
	return r
}

// Get returns the live session for path.
func (m *Manager) Get(path string) (Session, bool) {
	key, err := filepath.Abs(path)
	if err != nil {
		return Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok || s.handle.HasExited() {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns the live sessions ordered by path.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for key, s := range m.sessions {
		if s.handle.HasExited() {
			delete(m.sessions, key)
			continue
		}
		out = append(out, *s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Stop retires the session for path. It reports whether one existed.
func (m *Manager) Stop(path string) bool {
	key, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.retire(s)
	return true
}

// StopAll retires every session and returns how many there were. The
// session map is empty afterwards.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range snapshot {
		g.Go(func() error {
			m.retire(s)
			return nil
		})
	}
	_ = g.Wait()
	return len(snapshot)
}

func (m *Manager) retire(s *Session) {
	if err := s.handle.Shutdown(m.reg.Grace()); err != nil && !errors.Is(err, process.ErrNotStarted) {
		m.log.Warn().Err(err).Str("path", s.Path).Msg("web app did not stop cleanly")
	}
	m.reg.Unregister(s.handle.ID)
}

// outputWatcher reads merged server output, reports the first URL
// announcement and keeps draining until the pipe closes.
type outputWatcher struct {
	r     *os.File
	log   zerolog.Logger
	found chan string
	eof   chan struct{}

	mu   sync.Mutex
	buf  strings.Builder
	seen bool
}

func newWatcher(r *os.File, log zerolog.Logger) *outputWatcher {
	return &outputWatcher{
		r:     r,
		log:   log,
		found: make(chan string, 1),
		eof:   make(chan struct{}),
	}
}

func (w *outputWatcher) run() {
	defer close(w.eof)
	defer w.r.Close()

	scanner := bufio.NewScanner(w.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		w.mu.Lock()
		if w.seen {
			w.mu.Unlock()
			w.log.Trace().Str("line", line).Msg("web app output")
			continue
		}
		if w.buf.Len() < maxCaptured {
			w.buf.WriteString(line)
			w.buf.WriteByte('\n')
		}
		url, ok := MatchURL(line)
		if ok {
			w.seen = true
		}
		w.mu.Unlock()

		if ok {
			w.found <- url
		}
	}
	if err := scanner.Err(); err != nil {
		w.log.Debug().Err(err).Msg("web app output closed")
	}
}

func (w *outputWatcher) captured() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
