package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"updock/cmd/updock/ui"
	"updock/internal/logging"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	var debug bool

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "updock",
		Short:         "Update and roll back Docker containers in place",
		Long: `updock reconciles running containers against their desired image
versions. Updates recreate the container with its original launch
configuration, every decision is appended to a history ledger, and the
ledger drives rollback to any previously deployed version.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.Configure()
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().String("ledger", "", "History ledger file (overrides config)")

	root.AddCommand(updateCmd())
	root.AddCommand(rollbackCmd())
	root.AddCommand(historyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}
