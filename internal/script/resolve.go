package script

import (
	"errors"
	"fmt"

	"github.com/dshills/foundry/internal/platform"
)

// ErrPlatformUnsupported is returned when the host cannot run a script kind.
var ErrPlatformUnsupported = errors.New("script kind not supported on this platform")

// FallbackShell is used when no POSIX shell is found on PATH.
const FallbackShell = "/bin/sh"

// shellPreference lists POSIX shells in order of preference.
var shellPreference = []string{"bash", "sh"}

// Command is a resolved launch command.
type Command struct {
	// Argv is the program followed by its arguments.
	Argv []string
	// Kind is the script kind the command was resolved for.
	Kind Kind
}

// Resolver turns script paths into launch commands.
// Resolve has no side effects; PATH lookups go through LookPath.
type Resolver struct {
	// Host is the platform commands are resolved for.
	Host platform.Host
	// Interpreter runs interpreted scripts. Empty means search PATH.
	Interpreter string
	// LookPath searches PATH. Defaults to exec.LookPath.
	LookPath platform.LookPathFunc
}

// NewResolver creates a resolver for the current platform.
func NewResolver(interpreter string) Resolver {
	return Resolver{
		Host:        platform.Current(),
		Interpreter: interpreter,
		LookPath:    platform.SystemLookPath,
	}
}

// Resolve returns the command that launches the script at path.
func (r Resolver) Resolve(path string) (Command, error) {
	kind := KindOf(path)
	switch kind {
	case KindInterpreted:
		return Command{Argv: []string{r.InterpreterPath(), path}, Kind: kind}, nil
	case KindShell:
		return Command{Argv: []string{r.ShellPath(), path}, Kind: kind}, nil
	case KindBatch:
		if r.Host != platform.Windows {
			return Command{Kind: kind}, fmt.Errorf("%w: batch scripts require windows, host is %s", ErrPlatformUnsupported, r.Host)
		}
		return Command{Argv: []string{"cmd.exe", "/c", path}, Kind: kind}, nil
	default:
		return Command{Argv: []string{path}, Kind: KindUnknown}, nil
	}
}

// InterpreterPath returns the configured interpreter, or the first python
// found on PATH. If none is found the bare name is returned so that the
// failure surfaces at launch.
func (r Resolver) InterpreterPath() string {
	if r.Interpreter != "" {
		return r.Interpreter
	}
	candidates := []string{"python3", "python"}
	if r.Host == platform.Windows {
		candidates = []string{"python", "py", "python3"}
	}
	for _, name := range candidates {
		if p, ok := r.lookPath(name); ok {
			return p
		}
	}
	return candidates[0]
}

// ShellPath returns the preferred POSIX shell, falling back to FallbackShell.
func (r Resolver) ShellPath() string {
	for _, name := range shellPreference {
		if p, ok := r.lookPath(name); ok {
			return p
		}
	}
	return FallbackShell
}

func (r Resolver) lookPath(name string) (string, bool) {
	look := r.LookPath
	if look == nil {
		look = platform.SystemLookPath
	}
	p, err := look(name)
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}
