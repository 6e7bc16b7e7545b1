package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/mcp"
)

func newIndexCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project's documentation",
		Long: `Activate a project and index every markdown file under its docs root.

index drives the same activate_project and index_document tools an MCP
client would call; it exists for scripting and one-off reindexing
without a running MCP client attached.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := projectDir
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd, root)
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", ".", "Project directory to index")

	return cmd
}

func runIndex(cmd *cobra.Command, projectDir string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := filepath.Abs(projectDir)
	if err != nil {
		root = projectDir
	}

	logger := slog.Default()
	if !debugMode {
		logger = logging.SetupStdio("warn")
	}

	srv := mcp.NewServer(logger)
	defer func() { _ = srv.Close() }()

	if _, err := srv.ActivateProject(ctx, root); err != nil {
		return fmt.Errorf("failed to activate project: %w", err)
	}

	paths, err := srv.DiscoverMarkdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover markdown files: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "indexing %d document(s) under %s\n", len(paths), root)

	var failed int
	for _, relPath := range paths {
		result, err := srv.IndexDocument(ctx, relPath)
		if err != nil {
			fmt.Fprintf(out, "  %-40s FAILED: %v\n", relPath, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "  %-40s %s  %d chunk(s)\n", relPath, result.DocType, result.ChunkCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed to index", failed, len(paths))
	}

	fmt.Fprintf(out, "done: %d document(s) indexed\n", len(paths))
	return nil
}
