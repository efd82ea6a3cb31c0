package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the process package.
var (
	// ErrNotStarted is returned when an operation requires a started process.
	ErrNotStarted = errors.New("process not started")

	// ErrAlreadyStarted is returned when starting a handle twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrDuplicate is returned when registering a handle twice.
	ErrDuplicate = errors.New("process already registered")

	// ErrRegistryClosed is returned when spawning after Close.
	ErrRegistryClosed = errors.New("registry is closed")
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited on its own.
	StateExited
	// StateKilled indicates the process was ended by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Kind distinguishes what a handle was started for.
type Kind int

const (
	// KindOneShot is a foreground run that ends on its own.
	KindOneShot Kind = iota
	// KindWebApp is a long-running local web server.
	KindWebApp
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindWebApp {
		return "webapp"
	}
	return "oneshot"
}

// Handle is a started (or about to be started) script process.
type Handle struct {
	// ID is the unique identifier for this handle.
	ID string

	// ScriptPath is the absolute path of the script being run.
	ScriptPath string

	// Kind records what the process was started for.
	Kind Kind

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Created is the time Start succeeded.
	Created time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	waitOnce sync.Once
}

// NewHandle wraps cmd. The command must not have been started.
func NewHandle(cmd *exec.Cmd, scriptPath string, kind Kind) *Handle {
	h := &Handle{
		ID:         uuid.New().String(),
		ScriptPath: scriptPath,
		Kind:       kind,
		Cmd:        cmd,
		done:       make(chan struct{}),
	}
	h.state.Store(int32(StateCreated))
	h.exitCode.Store(-1)
	return h
}

// Argv returns the command line.
func (h *Handle) Argv() []string {
	return h.Cmd.Args
}

// State returns the current process state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// ExitCode returns the exit code, or -1 if the process has not exited
// or was ended by a signal.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// ExitError returns the error from waiting on the process, if any.
func (h *Handle) ExitError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitErr
}

// Done returns a channel that is closed when the process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsRunning reports whether the process is running.
func (h *Handle) IsRunning() bool {
	return h.State() == StateRunning
}

// HasExited reports whether the process has exited or was killed.
func (h *Handle) HasExited() bool {
	s := h.State()
	return s == StateExited || s == StateKilled
}

// PID returns the OS process id, or -1 if not started.
func (h *Handle) PID() int {
	if h.Cmd.Process == nil {
		return -1
	}
	return h.Cmd.Process.Pid
}

// Start launches the process in a new process group.
func (h *Handle) Start() error {
	if h.State() != StateCreated || h.Cmd.Process != nil {
		return ErrAlreadyStarted
	}

	isolate(h.Cmd)
	if err := h.Cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	h.Created = time.Now()
	h.state.Store(int32(StateRunning))

	go h.waitLoop()
	return nil
}

func (h *Handle) waitLoop() {
	h.waitOnce.Do(func() {
		err := h.Cmd.Wait()
		// Whatever the leader left behind in its group goes with it.
		reapGroup(h.Cmd.Process.Pid)

		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()

		code := -1
		state := StateExited
		if ps := h.Cmd.ProcessState; ps != nil {
			// Set whenever the leader was reaped, including when Wait
			// reports ErrWaitDelay or an output copy error.
			code = ps.ExitCode()
			if code == -1 {
				state = StateKilled
			}
		}

		h.exitCode.Store(int32(code))
		h.state.Store(int32(state))
		close(h.done)
	})
}

// Terminate asks the process group to exit. On hosts without signals it
// kills the process.
func (h *Handle) Terminate() error {
	if h.Cmd.Process == nil {
		return ErrNotStarted
	}
	if h.HasExited() {
		return nil
	}
	return terminateGroup(h.Cmd.Process)
}

// Kill forcibly ends the process group.
func (h *Handle) Kill() error {
	if h.Cmd.Process == nil {
		return ErrNotStarted
	}
	if h.HasExited() {
		return nil
	}
	return killGroup(h.Cmd.Process)
}

// Shutdown terminates the process, waits up to grace for it to exit,
// then kills it and waits for exit.
func (h *Handle) Shutdown(grace time.Duration) error {
	if h.Cmd.Process == nil {
		return ErrNotStarted
	}
	if h.HasExited() {
		return nil
	}

	termErr := h.Terminate()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	if err := h.Kill(); err != nil {
		return errors.Join(termErr, fmt.Errorf("kill process %d: %w", h.PID(), err))
	}
	<-h.done
	return nil
}

// Runtime returns how long the process has been running.
func (h *Handle) Runtime() time.Duration {
	if h.Created.IsZero() {
		return 0
	}
	return time.Since(h.Created)
}
