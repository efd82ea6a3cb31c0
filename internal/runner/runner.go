// Package runner is the entry point for running project scripts.
//
// Run dispatches on the script's classification: web-app scripts go to
// the session manager, shell and batch scripts open in a new terminal
// window, and everything else runs in the foreground with a time budget.
// Every outcome, including failures, is reported as a script.Result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/foundry/internal/config"
	"github.com/dshills/foundry/internal/platform"
	"github.com/dshills/foundry/internal/process"
	"github.com/dshills/foundry/internal/script"
	"github.com/dshills/foundry/internal/terminal"
	"github.com/dshills/foundry/internal/webapp"
	"github.com/rs/zerolog"
)

// Runner runs scripts and tracks the processes it starts.
type Runner struct {
	layout     config.Layout
	timeout    time.Duration
	grace      time.Duration
	browse     bool
	delay      time.Duration
	classifier *script.Classifier
	resolver   script.Resolver
	reg        *process.Registry
	webapps    *webapp.Manager
	launcher   terminal.Launcher
	log        zerolog.Logger

	webCmd webapp.CommandFunc

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger. Components derive their own from it.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithLauncher replaces how terminal windows and browsers are started.
func WithLauncher(l terminal.Launcher) Option {
	return func(r *Runner) {
		if l != nil {
			r.launcher = l
		}
	}
}

// WithHost sets the platform commands are planned for and the PATH
// lookup used while planning.
func WithHost(host platform.Host, lookPath platform.LookPathFunc) Option {
	return func(r *Runner) {
		r.resolver.Host = host
		if lookPath != nil {
			r.resolver.LookPath = lookPath
		}
	}
}

// WithWebAppCommand replaces how web-app servers are started.
func WithWebAppCommand(fn webapp.CommandFunc) Option {
	return func(r *Runner) {
		r.webCmd = fn
	}
}

// New creates a runner for the project described by cfg.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		layout:   layout,
		timeout:  cfg.Runner.Timeout.Std(),
		grace:    cfg.Runner.StopGrace.Std(),
		browse:   cfg.Runner.OpenBrowser,
		delay:    cfg.Runner.BrowserDelay.Std(),
		resolver: script.NewResolver(cfg.Runner.Interpreter),
		log:      zerolog.Nop(),
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.launcher == nil {
		r.launcher = terminal.NewExecLauncher(r.component("terminal"))
	}
	if r.webCmd == nil {
		r.webCmd = webapp.FrameworkCommand(r.resolver.InterpreterPath(), cfg.WebApp.Port, cfg.WebApp.ExtraArgs)
	}

	r.classifier = script.NewClassifier(r.component("classifier"))
	r.reg = process.NewRegistry(
		process.WithGrace(r.grace),
		process.WithLogger(r.component("registry")),
	)
	r.webapps = webapp.NewManager(r.reg,
		webapp.WithCommand(r.webCmd),
		webapp.WithURLTimeout(cfg.WebApp.URLTimeout.Std()),
		webapp.WithLogger(r.component("webapp")),
	)
	return r, nil
}

func (r *Runner) component(name string) zerolog.Logger {
	return r.log.With().Str("component", name).Logger()
}

// Layout returns the project layout the runner works in.
func (r *Runner) Layout() config.Layout {
	return r.layout
}

// Discover lists the scripts under root, or under the project scripts
// folder when root is empty.
func (r *Runner) Discover(root string) ([]script.Script, error) {
	if root == "" {
		root = r.layout.Scripts
	}
	return r.classifier.Discover(root)
}

// Run runs the script at path with cwd as its working directory. An
// empty cwd means the project root and a zero timeout means the
// configured default. Run always returns a result.
func (r *Runner) Run(ctx context.Context, path, cwd string, timeout time.Duration) script.Result {
	abs, err := filepath.Abs(path)
	if err != nil {
		return script.NotFound(path)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		r.log.Warn().Str("path", abs).Msg("script not found")
		return script.NotFound(abs)
	}
	if cwd == "" {
		cwd = r.layout.Root
	}
	if timeout <= 0 {
		timeout = r.timeout
	}

	s := r.classifier.Inspect(abs)
	r.log.Info().Str("path", abs).Stringer("kind", s.Kind).Bool("webapp", s.WebApp).Msg("running script")

	switch {
	case s.WebApp:
		return r.webapps.Start(ctx, abs, cwd)
	case s.Kind == script.KindShell || s.Kind == script.KindBatch:
		return r.runInTerminal(abs, cwd)
	default:
		return r.runForeground(ctx, abs, cwd, timeout)
	}
}

// runForeground runs the script to completion or until timeout.
func (r *Runner) runForeground(ctx context.Context, path, cwd string, timeout time.Duration) script.Result {
	command, err := r.resolver.Resolve(path)
	if err != nil {
		return script.Unsupported(path, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = cwd
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Descendants that keep the pipes open must not hold up Wait forever.
	cmd.WaitDelay = r.grace

	h, err := r.reg.Spawn(cmd, path, process.KindOneShot)
	if err != nil {
		r.log.Error().Err(err).Str("path", path).Msg("failed to launch script")
		return script.LaunchFailed(path, err)
	}
	defer r.reg.Unregister(h.ID)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-h.Done():
		var exitErr *exec.ExitError
		if err := h.ExitError(); err != nil && !errors.As(err, &exitErr) {
			r.log.Warn().Err(err).Str("path", path).Msg("script left processes holding its output")
		}
		res := script.Completed(path, stdout.String(), stderr.String(), h.ExitCode())
		r.log.Info().Str("path", path).Int("exit_code", res.ExitCode).Bool("success", res.Success).Msg("script finished")
		return res
	case <-ctx.Done():
	}

	if err := h.Shutdown(r.grace); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("failed to stop script")
	}
	<-h.Done()

	res := script.TimedOut(path, stdout.String(), stderr.String(), timeout.String())
	if errors.Is(ctx.Err(), context.Canceled) {
		res.Error = "script run cancelled"
	}
	r.log.Warn().Str("path", path).Dur("timeout", timeout).Msg(res.Error)
	return res
}

// runInTerminal opens the script in a new terminal window and schedules
// the local URLs it mentions to open in the browser.
func (r *Runner) runInTerminal(path, cwd string) script.Result {
	command, err := r.resolver.Resolve(path)
	if err != nil {
		return script.Unsupported(path, err)
	}
	plan, err := terminal.PlanScript(r.resolver.Host, command.Argv, cwd, r.resolver.LookPath)
	if err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("cannot open terminal")
		return script.Unsupported(path, err)
	}

	pid, err := r.launcher.Launch(plan)
	if err != nil {
		r.log.Error().Err(err).Str("path", path).Msg("failed to open terminal")
		return script.LaunchFailed(path, err)
	}

	res := script.Completed(path, fmt.Sprintf("Opened %s in a new terminal window.\n", filepath.Base(path)), "", 0)
	res.PID = pid

	if src, err := os.ReadFile(path); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("cannot scan script for URLs")
	} else if urls := terminal.LocalURLs(string(src)); len(urls) > 0 {
		res.URL = urls[0]
		if r.browse {
			r.openLater(urls)
		}
	}

	r.log.Info().Str("path", path).Int("pid", pid).Msg("script opened in terminal")
	return res
}

// openLater opens each URL in the browser after the configured delay.
func (r *Runner) openLater(urls []string) {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(r.delay, func() {
		r.timersMu.Lock()
		delete(r.timers, t)
		r.timersMu.Unlock()

		for _, u := range urls {
			plan, err := terminal.PlanBrowser(r.resolver.Host, u)
			if err != nil {
				r.log.Debug().Err(err).Str("url", u).Msg("no browser to open URL")
				return
			}
			if _, err := r.launcher.Launch(plan); err != nil {
				r.log.Warn().Err(err).Str("url", u).Msg("failed to open browser")
			}
		}
	})
	r.timers[t] = struct{}{}
}

// Stop stops the process with the given pid.
func (r *Runner) Stop(pid int) bool {
	return r.reg.Stop(pid)
}

// StopAll stops every running script and web app and returns how many
// were running.
func (r *Runner) StopAll() int {
	n := r.reg.StopAll()
	// Sessions are normally dropped with their process; clear any left over.
	n += r.webapps.StopAll()
	return n
}

// ListRunning returns the live processes ordered by start time.
func (r *Runner) ListRunning() []process.Info {
	return r.reg.List()
}

// Sessions returns the live web-app sessions.
func (r *Runner) Sessions() []webapp.Session {
	return r.webapps.Sessions()
}

// Shutdown stops everything and refuses further launches.
func (r *Runner) Shutdown() int {
	r.timersMu.Lock()
	for t := range r.timers {
		t.Stop()
	}
	clear(r.timers)
	r.timersMu.Unlock()

	n := r.reg.Close()
	n += r.webapps.StopAll()
	r.log.Info().Int("count", n).Msg("stopped all scripts on shutdown")
	return n
}
