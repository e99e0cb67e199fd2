package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent project sessions",
	Long:  `List, inspect, and remove the sessions held by the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sessions, err := rt.Engine.Sessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}

		printer := newPrinter(cmd)
		if printer.JSONMode() {
			return printer.JSON(sessions)
		}
		if len(sessions) == 0 {
			printer.Line("No sessions found.")
			return nil
		}

		printer.Line("Sessions:")
		for _, s := range sessions {
			printer.Line("- %s", s)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:     "show <session-id>",
	Aliases: []string{"inspect"},
	Short:   "Show the latest snapshot of a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		snap, err := rt.Engine.State(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		return newPrinter(cmd).Snapshot(snap)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:     "rm <session-id>...",
	Aliases: []string{"delete"},
	Short:   "Remove one or more sessions",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		printer := newPrinter(cmd)
		failed := 0
		for _, sessionID := range args {
			if err := rt.Engine.DeleteSession(cmd.Context(), sessionID); err != nil {
				printer.Line("Error removing '%s': %v", sessionID, err)
				failed++
			} else {
				printer.Line("Removed session '%s'", sessionID)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d sessions could not be removed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
