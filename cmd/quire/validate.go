package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/pkg/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate [catalog]",
	Short: "Check the catalog and handler configuration for consistency",
	Long: `Loads the action catalog and the handler configuration, reports actions that
have no handler and, with --goal, checks the goal is reachable from --state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Catalog = args[0]
		}

		rt, err := cli.Build(cfg)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		defer rt.Close()

		printer := newPrinter(cmd)
		var problems []error

		for _, name := range rt.Handlers.Missing(rt.Engine.Catalog()) {
			a := rt.Engine.Catalog().MustGet(name)
			problems = append(problems, fmt.Errorf("action %s has no handler %q", a.Name, a.HandlerKey()))
		}

		if goalArg, _ := cmd.Flags().GetString("goal"); goalArg != "" {
			goal, err := catalog.ParseGoal(goalArg)
			if err != nil {
				return err
			}
			stateArg, _ := cmd.Flags().GetString("state")
			state, err := cli.ParseState(stateArg)
			if err != nil {
				return err
			}
			if _, err := rt.Engine.Plan(cmd.Context(), state, goal); err != nil {
				problems = append(problems, fmt.Errorf("goal %s: %w", goal, err))
			}
		}

		if len(problems) > 0 {
			for _, p := range problems {
				printer.Line("- %v", p)
			}
			return fmt.Errorf("validation failed: %w", errors.Join(problems...))
		}

		printer.Line("Catalog is valid! ✅ (%d actions)", rt.Engine.Catalog().Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("goal", "", "Goal that must be reachable")
	validateCmd.Flags().String("state", "", "State the goal must be reachable from")
}
