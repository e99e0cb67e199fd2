package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/internal/presentation/graph"
	"github.com/aretw0/quire/pkg/catalog"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [goal]",
	Short: "Export the catalog or a plan as a Mermaid diagram",
	Long: `Without a goal, outputs the action dependency graph of the catalog: an edge
A --> B means A produces a fact B requires. With a goal, outputs the plan
from --state grouped by execution batch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 0 {
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateCatalog(rt.Engine.Actions()))
			return nil
		}

		goal, err := catalog.ParseGoal(args[0])
		if err != nil {
			return err
		}
		stateArg, _ := cmd.Flags().GetString("state")
		state, err := cli.ParseState(stateArg)
		if err != nil {
			return err
		}
		plan, err := rt.Engine.Plan(cmd.Context(), state, goal)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GeneratePlan(plan, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("state", "", "World state to plan from when a goal is given")
}
