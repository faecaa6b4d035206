package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scopeguard/internal/app"
	sgmcp "github.com/ppiankov/scopeguard/internal/mcp"
)

var mcpUser string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVarP(&mcpUser, "user", "u", "mcp", "User ID recorded for checks made through MCP")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs scopeguard as an MCP (Model Context Protocol) server over stdio.\nExposes tools: scope_check, scope_contract.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := sgmcp.New(a.Engine(), a.Scope(), sgmcp.Config{UserID: mcpUser, Version: version}, logger.Named("mcp"))
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(os.Stderr, "scopeguard MCP server running on stdio")
	return srv.Run(ctx)
}
