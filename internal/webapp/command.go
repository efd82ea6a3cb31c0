package webapp

import (
	"os/exec"
	"regexp"
	"strconv"
)

// CommandFunc builds the command that serves the script at path with cwd
// as its working directory. The command must not be started.
type CommandFunc func(path, cwd string) (*exec.Cmd, error)

// announcement matches the line the framework prints once its server is
// listening. "Local URL:" is printed by default and a bare "URL:" when a
// server address is configured; "Network URL:" lines are ignored so that
// the loopback address is preferred. This is a textual heuristic.
var announcement = regexp.MustCompile(`(?i)^\s*(?:local\s+)?url:\s*(https?://\S+)`)

// MatchURL returns the URL announced on line, if any.
func MatchURL(line string) (string, bool) {
	m := announcement.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FrameworkCommand returns a CommandFunc that runs scripts under the
// framework's headless server. port 0 leaves port selection to the
// framework.
func FrameworkCommand(interpreter string, port int, extraArgs []string) CommandFunc {
	return func(path, cwd string) (*exec.Cmd, error) {
		args := []string{
			"-m", "streamlit", "run", path,
			"--server.headless", "true",
			"--browser.gatherUsageStats", "false",
		}
		if port > 0 {
			args = append(args, "--server.port", strconv.Itoa(port))
		}
		args = append(args, extraArgs...)

		cmd := exec.Command(interpreter, args...)
		cmd.Dir = cwd
		return cmd, nil
	}
}
