package main

import (
	"io"
	"os"
	"sync"

	"github.com/dshills/foundry/internal/eventloop"
	"github.com/dshills/foundry/internal/logging"
	"github.com/dshills/foundry/internal/watcher"
	"github.com/spf13/cobra"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var (
		rerun     bool
		forcePoll bool
		ignore    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report changes to the input, output and scripts folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags)
			if err != nil {
				return err
			}
			defer s.runner.Shutdown()

			ctx := cmd.Context()
			out := &lockedWriter{w: os.Stdout}
			gate := watcher.NewScriptGate(s.cfg.Watcher.ScriptGate.Std())

			filter := watcher.NewDefaultFilter()
			if ignore != "" {
				if err := filter.AddFromFile(ignore); err != nil {
					return err
				}
			}

			callbacks := watcher.Callbacks{
				OnDataChange: func() {
					out.line(dataChangeNotice())
				},
				OnOutputFileChange: func(path string, change watcher.ChangeType) {
					out.line(outputFileNotice(s.layout.Root, path, change))
				},
				OnScriptChange: func(path string) {
					if !gate.Allow(path) {
						return
					}
					out.line(scriptChangeNotice(path))
					if rerun {
						go func() {
							out.json(s.runner.Run(ctx, path, "", 0))
						}()
					}
				},
			}

			opts := append(watcher.ConfigOptions(s.cfg.Watcher),
				watcher.WithLogger(logging.Component(s.log, "watcher")),
				watcher.WithFilter(filter),
			)
			if forcePoll {
				opts = append(opts, watcher.WithForcePoll(true))
			}
			det := watcher.NewDetector(watcher.LayoutRoots(s.layout), callbacks, opts...)

			loop := eventloop.New(eventloop.WithLogger(logging.Component(s.log, "loop")))
			if err := det.Start(ctx, loop); err != nil {
				return err
			}
			defer det.Stop()

			s.log.Info().Str("mode", det.Mode()).Str("project", s.layout.Root).Msg("watching")
			err = loop.Run(ctx)
			st := det.Stats()
			s.log.Info().
				Int64("received", st.Received).
				Int64("delivered", st.Delivered).
				Int64("debounced", st.Debounced).
				Msg("watch ended")
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.BoolVar(&rerun, "rerun", false, "run a script again whenever it changes")
	f.BoolVar(&forcePoll, "poll", false, "poll instead of using OS notifications")
	f.StringVar(&ignore, "ignore-file", "", "file with extra ignore patterns, one per line")
	return cmd
}

// lockedWriter serializes output lines written from several goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) line(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, s+"\n")
}

func (l *lockedWriter) json(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = printJSON(l.w, v)
}
