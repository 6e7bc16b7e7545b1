package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/mcp"
)

func newSearchCmd() *cobra.Command {
	var (
		projectDir string
		docTypes   string
		limit      int
		minScore   float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic search against an indexed project",
		Long: `Activate a project and run the same semantic_search tool an MCP
client would call, printing the ranked hits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var types []string
			if docTypes != "" {
				types = strings.Split(docTypes, ",")
			}
			return runSearch(cmd, projectDir, args[0], types, limit, minScore, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", ".", "Project directory to search")
	cmd.Flags().StringVar(&docTypes, "doc-types", "", "Comma-separated list of doc types to restrict to")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of hits (0 returns none, >50 clamps to 50)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum relevance score, default 0.5")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, projectDir, query string, docTypes []string, limit int, minScore float64, jsonOutput bool) error {
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

	out, err := srv.SemanticSearch(ctx, mcp.SemanticSearchInput{
		Query:             query,
		DocTypes:          docTypes,
		Limit:             &limit,
		MinRelevanceScore: minScore,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	if len(out.Hits) == 0 {
		fmt.Fprintln(w, "no hits")
		return nil
	}
	for _, h := range out.Hits {
		fmt.Fprintf(w, "%.3f  %-12s %-30s %s\n", h.Score, h.DocType, h.RelativePath, h.HeaderPath)
	}
	return nil
}
