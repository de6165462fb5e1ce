package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	mcpserver "prdflow/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing session, intake, phase
and snapshot tools. An MCP-capable client connects over stdio and drives
the full generation workflow through tool calls.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runner, err := buildRunner(st)
	if err != nil {
		return err
	}
	defer runner.Wait()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv := mcpserver.NewServer(runner, st, rootFlags.questionnaireDir)
	return srv.Run(ctx, &sdkmcp.StdioTransport{})
}
