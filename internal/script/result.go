package script

import "fmt"

// Failure classifies why a run did not succeed.
type Failure int

const (
	// FailureNone means the run succeeded.
	FailureNone Failure = iota
	// FailureNotFound means the script did not exist at run time.
	FailureNotFound
	// FailureLaunch means the process could not be created.
	FailureLaunch
	// FailureRuntime means the process ran and exited nonzero.
	FailureRuntime
	// FailureTimeout means a foreground run exceeded its budget.
	FailureTimeout
	// FailureStart means a web app never announced its URL.
	FailureStart
	// FailurePlatformUnsupported means the host cannot run this script kind.
	FailurePlatformUnsupported
)

// String returns the failure name.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not_found"
	case FailureLaunch:
		return "launch_error"
	case FailureRuntime:
		return "runtime_failure"
	case FailureTimeout:
		return "timeout"
	case FailureStart:
		return "start_failure"
	case FailurePlatformUnsupported:
		return "platform_unsupported"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Failure) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Result describes one run attempt. It is built once and not modified
// after it is returned.
type Result struct {
	ScriptPath string  `json:"script_path"`
	Success    bool    `json:"success"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	ExitCode   int     `json:"exit_code"`
	Error      string  `json:"error,omitempty"`
	Failure    Failure `json:"failure"`
	TimedOut   bool    `json:"timed_out"`
	URL        string  `json:"url,omitempty"`
	// PID is the process that served the run, when one is still relevant
	// (web-app sessions and terminal launches).
	PID int `json:"pid,omitempty"`
}

// Completed builds the result of a process that ran to completion.
// A nonzero exit is a normal result with Success false.
func Completed(path, stdout, stderr string, exitCode int) Result {
	r := Result{
		ScriptPath: path,
		Success:    exitCode == 0,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   exitCode,
	}
	if exitCode != 0 {
		r.Failure = FailureRuntime
		r.Error = fmt.Sprintf("script exited with code %d", exitCode)
	}
	return r
}

// NotFound builds the result for a missing script.
func NotFound(path string) Result {
	return Failed(path, FailureNotFound, fmt.Sprintf("script not found: %s", path))
}

// LaunchFailed builds the result for a process that could not be created.
func LaunchFailed(path string, err error) Result {
	return Failed(path, FailureLaunch, fmt.Sprintf("failed to launch script: %v", err))
}

// Unsupported builds the result for a script kind the host cannot run.
func Unsupported(path string, err error) Result {
	return Failed(path, FailurePlatformUnsupported, err.Error())
}

// TimedOut builds the result for a foreground run that exceeded its budget.
// Output captured before the process was stopped is kept.
func TimedOut(path, stdout, stderr, budget string) Result {
	r := Failed(path, FailureTimeout, fmt.Sprintf("script timed out after %s", budget))
	r.Stdout = stdout
	r.Stderr = stderr
	r.TimedOut = true
	return r
}

// Failed builds a failed result with exit code -1.
func Failed(path string, f Failure, msg string) Result {
	return Result{
		ScriptPath: path,
		ExitCode:   -1,
		Failure:    f,
		Error:      msg,
	}
}
