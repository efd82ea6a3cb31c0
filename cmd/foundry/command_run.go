package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		timeout time.Duration
		cwd     string
		detach  bool
	)

	cmd := &cobra.Command{
		Use:   "run <script> [script...]",
		Short: "Run scripts and print their results as JSON",
		Long: "Run each script in turn. Interpreted scripts run in the foreground and\n" +
			"their output is captured. Shell and batch scripts open in a terminal\n" +
			"window. Web apps keep serving until interrupted unless --detach is given.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("at least one script is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags)
			if err != nil {
				return err
			}
			defer s.runner.Shutdown()

			ctx := cmd.Context()
			failed := 0
			for _, arg := range args {
				res := s.runner.Run(ctx, scriptPath(s.layout.Scripts, arg), cwd, timeout)
				if err := printJSON(os.Stdout, res); err != nil {
					return err
				}
				if !res.Success {
					failed++
				}
				if ctx.Err() != nil {
					break
				}
			}

			if sessions := s.runner.Sessions(); len(sessions) > 0 && !detach {
				for _, sess := range sessions {
					s.log.Info().Str("url", sess.URL).Str("script", sess.Path).Msg("web app serving, press Ctrl-C to stop")
				}
				<-ctx.Done()
			}

			if failed > 0 {
				return errors.New(plural(failed, "script") + " failed")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.DurationVarP(&timeout, "timeout", "t", 0, "foreground run budget (default from config)")
	f.StringVar(&cwd, "cwd", "", "working directory (default project root)")
	f.BoolVar(&detach, "detach", false, "stop web apps right after they report their URL")
	return cmd
}

// scriptPath resolves arg against the working directory first and the
// scripts folder second.
func scriptPath(scriptsDir, arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		if abs, err := filepath.Abs(arg); err == nil {
			return abs
		}
	}
	return filepath.Join(scriptsDir, arg)
}
