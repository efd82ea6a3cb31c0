//go:build unix

package terminal

import (
	"os/exec"
	"syscall"
)

// detach starts the command in a new session, away from our terminal and
// process group.
func detach(cmd *exec.Cmd, _ Plan) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
