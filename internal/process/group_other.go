//go:build !unix

package process

import (
	"os"
	"os/exec"
)

// isolate is a no-op where process groups are unavailable.
func isolate(cmd *exec.Cmd) {}

// terminateGroup kills the process; there is no polite signal to send.
func terminateGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(p *os.Process) error {
	return p.Kill()
}

// reapGroup does nothing without process groups.
func reapGroup(pid int) {}

func terminatePID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
