//go:build windows

package terminal

import (
	"os/exec"
	"syscall"
)

// detach starts the command in its own process group and hands it the
// plan's literal command line when there is one.
func detach(cmd *exec.Cmd, p Plan) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
		CmdLine:       p.CmdLine,
	}
}
