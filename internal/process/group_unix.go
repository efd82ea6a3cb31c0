//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate places the command in its own process group.
func isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func terminateGroup(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func killGroup(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

// signalGroup signals the whole group led by p. A group that is already
// gone is not an error.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// The leader may have left the group; fall back to the process itself.
		err = unix.Kill(p.Pid, sig)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
	}
	return err
}

// reapGroup kills any process still in the group led by the exited pid.
// It never signals pid itself, which may already belong to someone else.
func reapGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// terminatePID asks an arbitrary process to exit.
func terminatePID(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
