package main

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"trawl/internal/logging"
	mcpserver "trawl/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the scrape, list, get
and source-discovery tools to agent hosts.

The server monitors for parent process death. When the host disconnects
or restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.NewServer(a.svc, version)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchStdin(ctx, cancel)

	logging.New("mcp").Info("starting trawl MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
