package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start listening for MCP tool calls on stdin/stdout.

No project is active until a client calls activate_project; every other
tool returns a project_not_activated error until then.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

// runServe blocks serving MCP tool calls until ctx is canceled or the
// transport closes. stdout is reserved exclusively for JSON-RPC traffic, so
// nothing here writes to it directly; all diagnostics go through slog,
// which debug mode redirects to a file.
func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	if !debugMode {
		logger = logging.SetupStdio("info")
		slog.SetDefault(logger)
	}

	srv := mcp.NewServer(logger)
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("error closing server", slog.String("error", err.Error()))
		}
	}()

	return srv.Serve(ctx)
}
