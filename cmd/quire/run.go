package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/internal/presentation/tui"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan and execute towards a goal",
	Long: `Plans from the given state and executes the plan through the configured handlers.
With --session the state is loaded from (and the result persisted to) a session,
which is created from --state on first use.`,
	Example: `  quire run isPublished --session novel --state chaptersTotal=12
  quire run "hasCharacters, hasWorldbuilding" --state hasOutline=true --simulate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, err := catalog.ParseGoal(args[0])
		if err != nil {
			return err
		}
		stateArg, _ := cmd.Flags().GetString("state")
		state, err := cli.ParseState(stateArg)
		if err != nil {
			return err
		}
		sessionID, _ := cmd.Flags().GetString("session")

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		printer := newPrinter(cmd)
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet && !printer.JSONMode() && tui.IsTerminal(cmd.OutOrStdout()) {
			tui.PrintBanner(cmd.OutOrStdout())
		}

		ctx := cli.NotifyInterrupt(cmd.Context())
		defer ctx.Stop()

		var (
			res    *domain.ExecutionResult
			runErr error
		)
		if sessionID != "" {
			if _, err := rt.Engine.StartSession(ctx, sessionID, state); err != nil {
				return err
			}
			res, runErr = rt.Engine.Pursue(ctx, sessionID, goal)
		} else {
			plan, err := rt.Engine.Plan(ctx, state, goal)
			if err != nil {
				return err
			}
			res, runErr = rt.Engine.Execute(ctx, plan, state)
		}

		if err := printer.Run(res, runErr); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			return fmt.Errorf("interrupted by %s: %w", sig, runErr)
		}
		var perr *domain.PlanPartiallyExecuted
		if errors.As(runErr, &perr) {
			return perr
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("state", "", "Initial world state: JSON, @file.json or fact=value pairs")
	runCmd.Flags().String("session", "", "Session to pursue the goal in")
	runCmd.Flags().Bool("simulate", false, "Succeed immediately for actions without a configured handler")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
