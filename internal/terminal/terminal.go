// Package terminal decides how to open a script in a new terminal window
// and how to open a URL in the default browser, then launches the result
// detached from this process.
//
// Planning is pure: PlanScript and PlanBrowser only compute a command line
// for a given host, so every platform's decision can be tested anywhere.
package terminal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/foundry/internal/platform"
)

// Sentinel errors for the terminal package.
var (
	// ErrNoTerminal is returned when no terminal emulator can be used.
	ErrNoTerminal = errors.New("no terminal emulator available")

	// ErrNoBrowser is returned when the host has no known URL opener.
	ErrNoBrowser = errors.New("no browser opener available")

	// ErrEmptyCommand is returned when planning an empty command line.
	ErrEmptyCommand = errors.New("empty command")
)

// WindowTitle is the title used for terminal windows where the emulator
// accepts one.
const WindowTitle = "foundry"

// Plan is a command line ready to launch.
type Plan struct {
	// Argv is the program followed by its arguments.
	Argv []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// CmdLine, when set, is the exact Windows command line to pass to the
	// program instead of one rebuilt from Argv.
	CmdLine string
}

// String returns the command line for logging.
func (p Plan) String() string {
	return strings.Join(p.Argv, " ")
}

// emulator describes how a Linux terminal emulator runs a command.
type emulator struct {
	name string
	// execArgs precede the command to run.
	execArgs []string
	// holds is set when execArgs keep the window open after the command.
	holds bool
}

// linuxEmulators are tried in order.
var linuxEmulators = []emulator{
	{name: "x-terminal-emulator", execArgs: []string{"-e"}},
	{name: "gnome-terminal", execArgs: []string{"--"}},
	{name: "konsole", execArgs: []string{"--hold", "-e"}, holds: true},
	{name: "xfce4-terminal", execArgs: []string{"--hold", "-x"}, holds: true},
	{name: "xterm", execArgs: []string{"-hold", "-e"}, holds: true},
}

// keepOpen wraps argv so the window drops into an interactive shell once
// the script ends.
func keepOpen(argv []string) []string {
	return []string{"/bin/sh", "-c", shellJoin(argv) + `; exec "${SHELL:-/bin/sh}"`}
}

// PlanScript returns the command that opens a new terminal window running
// argv in dir.
func PlanScript(host platform.Host, argv []string, dir string, lookPath platform.LookPathFunc) (Plan, error) {
	if len(argv) == 0 {
		return Plan{}, ErrEmptyCommand
	}
	if lookPath == nil {
		lookPath = platform.SystemLookPath
	}

	switch host {
	case platform.Darwin:
		script := fmt.Sprintf(`tell application "Terminal" to do script "%s"`, appleScriptEscape(cdAndRun(dir, argv)))
		return Plan{
			Argv: []string{"osascript", "-e", script, "-e", `tell application "Terminal" to activate`},
			Dir:  dir,
		}, nil

	case platform.Linux:
		for _, em := range linuxEmulators {
			path, err := lookPath(em.name)
			if err != nil || path == "" {
				continue
			}
			run := argv
			if !em.holds {
				run = keepOpen(argv)
			}
			args := append([]string{path}, em.execArgs...)
			args = append(args, run...)
			return Plan{Argv: args, Dir: dir}, nil
		}
		return Plan{}, fmt.Errorf("%w: none of %s found on PATH", ErrNoTerminal, emulatorNames())

	case platform.Windows:
		// start takes its first quoted argument as the window title, so the
		// title must reach cmd.exe with its quotes. Argv escaping would drop
		// them, hence the explicit command line.
		args := []string{"cmd.exe", "/c", "start", `"` + WindowTitle + `"`}
		if dir != "" {
			args = append(args, "/D", winQuote(dir))
		}
		args = append(args, "cmd.exe", "/k")
		for _, a := range argv {
			args = append(args, winQuote(a))
		}
		return Plan{Argv: args, Dir: dir, CmdLine: strings.Join(args, " ")}, nil

	default:
		return Plan{}, fmt.Errorf("%w: host %s", ErrNoTerminal, host)
	}
}

// PlanBrowser returns the command that opens url in the default browser.
func PlanBrowser(host platform.Host, url string) (Plan, error) {
	switch host {
	case platform.Darwin:
		return Plan{Argv: []string{"open", url}}, nil
	case platform.Linux:
		return Plan{Argv: []string{"xdg-open", url}}, nil
	case platform.Windows:
		return Plan{Argv: []string{"rundll32", "url.dll,FileProtocolHandler", url}}, nil
	default:
		return Plan{}, fmt.Errorf("%w: host %s", ErrNoBrowser, host)
	}
}

func emulatorNames() string {
	names := make([]string, len(linuxEmulators))
	for i, em := range linuxEmulators {
		names[i] = em.name
	}
	return strings.Join(names, ", ")
}

// cdAndRun builds a POSIX shell line that changes to dir and runs argv.
func cdAndRun(dir string, argv []string) string {
	if dir == "" {
		return shellJoin(argv)
	}
	return "cd " + shellQuote(dir) + " && " + shellJoin(argv)
}

func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shellQuote single-quotes s unless it is made only of safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%_+=:,./-", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// winQuote double-quotes s for a cmd.exe command line when it is empty or
// contains characters that would split or reinterpret it.
func winQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"&|<>^()") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// appleScriptEscape escapes s for use inside an AppleScript string literal.
func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
