package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "quire",
	Short: "Quire plans and runs content production with goal-oriented action planning",
	Long: `Quire finds the cheapest sequence of production actions (outline, characters,
chapters, refinement, compilation, publication) that reaches a goal, and runs
them through pluggable agent handlers with retries, timeouts and persistence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a quire.yaml configuration file")
	rootCmd.PersistentFlags().String("catalog", "", "Path to an action catalog (YAML or JSON); the built-in catalog is used when empty")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")
}

// loadConfig reads the configuration file and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("catalog") {
		cfg.Catalog, _ = cmd.Flags().GetString("catalog")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, cfg.Validate()
}

// newRuntime wires the engine for a command.
func newRuntime(cmd *cobra.Command, opts ...cli.BuildOption) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if simulate, err := cmd.Flags().GetBool("simulate"); err == nil {
		opts = append(opts, cli.WithSimulation(simulate))
	}
	return cli.Build(cfg, opts...)
}

func newPrinter(cmd *cobra.Command) *cli.Printer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return cli.NewPrinter(cmd.OutOrStdout(), jsonMode)
}
