package main

import (
	"os"

	"github.com/dshills/foundry/internal/logging"
	"github.com/spf13/cobra"
)

func newScriptsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scripts [folder]",
		Short: "List the scripts in the project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags)
			if err != nil {
				return err
			}
			defer s.runner.Shutdown()

			root := s.layout.Scripts
			if len(args) == 1 {
				root = args[0]
			}
			scripts, err := s.runner.Discover(root)
			if err != nil {
				return err
			}

			if asJSON || !logging.IsTerminal(os.Stdout) {
				return printJSON(os.Stdout, scripts)
			}
			printScripts(os.Stdout, root, scripts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table (default when not a terminal)")
	return cmd
}
