package main

import (
	"os"

	"github.com/spf13/cobra"

	"updock/internal/rollback"
)

func rollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback NAME",
		Short: "Roll a container or service back to a previously deployed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer tk.Close()

			sel := &rollback.Selector{
				Engine:  tk.engine,
				History: tk.ledger,
				In:      os.Stdin,
				Out:     os.Stdout,
			}
			res, err := sel.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printResult(res)
			if res.Failed() {
				return res.Err
			}
			return nil
		},
	}
	return cmd
}
