package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/pkg/domain"
)

var execCmd = &cobra.Command{
	Use:   "exec <action>",
	Short: "Execute a single action outside any plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateArg, _ := cmd.Flags().GetString("state")
		state, err := cli.ParseState(stateArg)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cli.NotifyInterrupt(cmd.Context())
		defer ctx.Stop()

		res, next, runErr := rt.Engine.ExecuteSingle(ctx, args[0], state)

		printer := newPrinter(cmd)
		if printer.JSONMode() {
			if err := printer.JSON(struct {
				Result domain.ActionResult `json:"result"`
				State  domain.WorldState   `json:"state"`
			}{res, next}); err != nil {
				return err
			}
			return runErr
		}

		if res.Action != "" {
			printer.Line("%s: %s (attempts: %d)", res.Action, res.Status, res.Attempts)
			printer.Line("state: %s", next)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().String("state", "", "World state: JSON, @file.json or fact=value pairs")
	execCmd.Flags().Bool("simulate", false, "Succeed immediately when the action has no configured handler")
}
