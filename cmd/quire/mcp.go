package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/quire/internal/cli"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the quire engine as an MCP Server.
This allows AI agents (like Claude Desktop) to list actions, plan goals and
drive project sessions as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		// Ensure logs don't corrupt JSON-RPC on Stdout
		logger := logging.NewWithWriter(os.Stderr, level)
		log.SetOutput(os.Stderr)

		simulate, _ := cmd.Flags().GetBool("simulate")
		rt, err := cli.Build(cfg, cli.WithLogger(logger), cli.WithSimulation(simulate))
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine, logger)

		switch transport {
		case "stdio":
			logger.Info("starting quire MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx := cli.NotifyInterrupt(cmd.Context())
			defer ctx.Stop()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().Bool("simulate", false, "Succeed immediately for actions without a configured handler")
}
