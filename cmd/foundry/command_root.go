package main

import (
	"fmt"
	"os"

	"github.com/dshills/foundry/internal/config"
	"github.com/dshills/foundry/internal/logging"
	"github.com/dshills/foundry/internal/runner"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	project    string
	logLevel   string
	logFormat  string
}

// session is the state a subcommand works with.
type session struct {
	cfg    *config.Config
	layout config.Layout
	log    zerolog.Logger
	runner *runner.Runner
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "foundry",
		Short:         "Run and watch the scripts of a project folder",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a TOML or YAML config file")
	pf.StringVarP(&flags.project, "project", "p", "", "project folder (overrides project.root)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(newScriptsCmd(&flags))
	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newWatchCmd(&flags))

	return root
}

// openSession loads the configuration, prepares the project folders and builds
// the runner.
func openSession(flags *globalFlags) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.project != "" {
		cfg.Project.Root = flags.project
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
		Output: os.Stderr,
		Prefix: "foundry",
	})

	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	r, err := runner.New(cfg, runner.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, layout: layout, log: log, runner: r}, nil
}
