package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/cascade"
	"github.com/aretw0/cascade/pkg/adapters/mcp"
	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes trees and runs as MCP tools so that agents can start cascades,
answer questions and approve actions.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, logger, err := openSystem(cmd)
		if err != nil {
			return err
		}
		defer sys.Close()

		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		srv := mcp.NewServer(sys.Store, sys.NewSessionManager(), cascade.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("Starting Cascade MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx := lifecycle.NewSignalContext(context.Background())
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
