package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/internal/presentation/graph"
	"github.com/aretw0/quire/pkg/catalog"
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Compute the cheapest plan for a goal without running it",
	Long: `Searches the action catalog for the least-cost sequence that reaches the goal.
The goal is a comma separated conjunction, e.g. "chaptersCompleted >= 3, isPublished".`,
	Example: `  quire plan "chaptersCompleted >= 3" --state chaptersTotal=3`,
	Args:    cobra.ExactArgs(1),
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

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		plan, err := rt.Engine.Plan(cmd.Context(), state, goal)
		if err != nil {
			return err
		}

		if mermaid, _ := cmd.Flags().GetBool("mermaid"); mermaid {
			fmt.Fprint(cmd.OutOrStdout(), graph.GeneratePlan(plan, nil))
			return nil
		}
		return newPrinter(cmd).Plan(plan)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("state", "", "Initial world state: JSON, @file.json or fact=value pairs")
	planCmd.Flags().Bool("mermaid", false, "Print the plan as a Mermaid diagram")
}
