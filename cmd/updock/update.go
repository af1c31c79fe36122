package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"updock/cmd/updock/ui"
	"updock/internal/compose"
	"updock/internal/engine"
	"updock/internal/ledger"
)

func updateCmd() *cobra.Command {
	var (
		file    string
		service string
		project string
		tag     string
		force   bool
		noPrune bool
	)

	cmd := &cobra.Command{
		Use:   "update [CONTAINER...]",
		Short: "Update containers or compose services to their latest image",
		Args: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return errors.New("nothing to update: give container names or --file")
			}
			if file != "" && len(args) > 0 {
				return errors.New("--file and container names are mutually exclusive")
			}
			if service != "" && file == "" {
				return errors.New("--service requires --file")
			}
			if tag != "" && file != "" && service == "" {
				return errors.New("--tag with --file requires --service")
			}
			if tag != "" && len(args) > 1 {
				return errors.New("--tag requires exactly one container name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := setup(cmd, force)
			if err != nil {
				return err
			}
			defer tk.Close()

			var summary engine.Summary
			if file != "" {
				proj, err := compose.Load(cmd.Context(), file, project)
				if err != nil {
					return err
				}
				summary = tk.engine.UpdateProject(cmd.Context(), proj, service, tag)
			} else {
				summary = tk.engine.UpdateContainers(cmd.Context(), args, tag)
			}

			for _, res := range summary.Results {
				printResult(res)
			}

			if tk.cfg.PruneEnabled() && !noPrune {
				if err := tk.engine.PruneImages(cmd.Context()); err != nil {
					fmt.Println(ui.WarnMsg("image prune failed: %v", err))
				}
			}

			return summary.Err()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Compose file declaring the services to update")
	cmd.Flags().StringVarP(&service, "service", "s", "", "Update only this declared service")
	cmd.Flags().StringVar(&project, "project", "", "Compose project name (defaults to the file's directory name)")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Override the image tag for a single target")
	cmd.Flags().BoolVar(&force, "force", false, "Update even when the running image drifted from its declaration")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "Skip the post-run dangling image prune")
	return cmd
}

func printResult(res engine.Result) {
	switch res.Action {
	case ledger.ActionUpdate:
		fmt.Println(ui.SuccessMsg("%s updated to %s", ui.Bold(res.Name), ui.Accent(res.Image)))
	case ledger.ActionRollbackSuccess:
		fmt.Println(ui.SuccessMsg("%s rolled back to %s", ui.Bold(res.Name), ui.Accent(res.Image)))
	case ledger.ActionSkipPinned:
		fmt.Println(ui.InfoMsg("%s already up to date %s", ui.Bold(res.Name), ui.Muted("("+string(res.Identity)+")")))
	case ledger.ActionSkipMismatch:
		fmt.Println(ui.WarnMsg("%s skipped: running image drifted from its declaration (use --force to override)", ui.Bold(res.Name)))
	case ledger.ActionRecreateFail, ledger.ActionRollbackFail:
		fmt.Println(ui.ErrorMsg("%s: %v", ui.Bold(res.Name), res.Err))
		if res.PriorIdentity != "" {
			fmt.Println(ui.WarnMsg("previous version was %s, relaunch it manually or via rollback", ui.Accent(string(res.PriorIdentity))))
		}
	default:
		fmt.Println(ui.ErrorMsg("%s: %v", ui.Bold(res.Name), res.Err))
	}
}
