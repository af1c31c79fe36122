package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"updock/cmd/updock/ui"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Show the action history for a container or service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer tk.Close()

			records, err := tk.ledger.Query(args[0], nil, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(ui.InfoMsg("no history for %s", ui.Bold(args[0])))
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.Time.Local().Format(time.DateTime),
					string(rec.Action),
					rec.Image,
					string(rec.Identity),
				})
			}
			fmt.Println(ui.Table([]string{"When", "Action", "Image", "Identity"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")
	return cmd
}
