package terminal

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Launcher starts a planned command without waiting for it.
type Launcher interface {
	// Launch starts the plan and returns the pid of the started process.
	Launch(p Plan) (int, error)
}

// ExecLauncher starts plans as detached OS processes in their own session.
// The started process is reaped in the background.
type ExecLauncher struct {
	log zerolog.Logger
}

// NewExecLauncher creates a launcher that logs exits at debug level.
func NewExecLauncher(log zerolog.Logger) *ExecLauncher {
	return &ExecLauncher{log: log}
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(p Plan) (int, error) {
	if len(p.Argv) == 0 {
		return 0, ErrEmptyCommand
	}

	cmd := exec.Command(p.Argv[0], p.Argv[1:]...)
	cmd.Dir = p.Dir
	detach(cmd, p)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		devNull.Close()
		return 0, fmt.Errorf("launch %s: %w", p.Argv[0], err)
	}
	devNull.Close()

	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		l.log.Debug().Err(err).Int("pid", pid).Str("cmd", p.Argv[0]).Msg("detached process exited")
	}()
	return pid, nil
}
