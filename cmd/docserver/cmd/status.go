package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/mcp"
)

// Dashboard colors, matched to the palette the rest of this project's
// terminal output uses: lime for healthy, red for unreachable, gray for
// chrome.
const (
	colorLime     = "154"
	colorRed      = "196"
	colorDarkGray = "238"
)

func newStatusCmd() *cobra.Command {
	var (
		projectDir string
		watch      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and generator health for a project",
		Long: `Report registered doc types, document counts, Embedding Client
reachability, and File Watcher queue depth for a project.

--watch renders a live dashboard of the project name, generator
reachability, and File Watcher queue depth, polled once a second until
interrupted; doc types and document counts are not shown there.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch {
				return runStatusWatch(cmd, projectDir)
			}
			return runStatus(cmd, projectDir, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", ".", "Project directory to report on")
	cmd.Flags().BoolVar(&watch, "watch", false, "Render a live-updating dashboard")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusReport is the one-shot (non-watch) JSON/text status payload.
type statusReport struct {
	ProjectName string   `json:"project_name"`
	DocTypes    []string `json:"doc_types"`
	TotalDocs   int      `json:"total_documents"`
	Generator   string   `json:"generator_state"`
	QueueDepth  int      `json:"queue_depth"`
}

func activateForStatus(ctx context.Context, projectDir string) (*mcp.Server, *mcp.ActivateProjectOutput, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		root = projectDir
	}

	logger := slog.Default()
	if !debugMode {
		logger = logging.SetupStdio("warn")
	}

	srv := mcp.NewServer(logger)
	activated, err := srv.ActivateProject(ctx, root)
	if err != nil {
		_ = srv.Close()
		return nil, nil, fmt.Errorf("failed to activate project: %w", err)
	}
	return srv, &activated, nil
}

func runStatus(cmd *cobra.Command, projectDir string, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, activated, err := activateForStatus(ctx, projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	docTypesOut, err := srv.ListDocTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list doc types: %w", err)
	}

	report := statusReport{ProjectName: activated.ProjectName, Generator: "unknown"}
	var total int
	for _, dt := range docTypesOut.DocTypes {
		report.DocTypes = append(report.DocTypes, dt.Name)
		total += dt.DocumentCount
	}
	report.TotalDocs = total

	if snap, ok := srv.HealthSnapshot(); ok {
		report.Generator = snap.State
	}
	if depth, ok := srv.QueueDepth(); ok {
		report.QueueDepth = depth
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Fprintf(w, "project:        %s\n", report.ProjectName)
	fmt.Fprintf(w, "doc types:      %d\n", len(report.DocTypes))
	fmt.Fprintf(w, "documents:      %d\n", report.TotalDocs)
	fmt.Fprintf(w, "generator:      %s\n", report.Generator)
	fmt.Fprintf(w, "watcher queue:  %d\n", report.QueueDepth)
	return nil
}

func runStatusWatch(cmd *cobra.Command, projectDir string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, activated, err := activateForStatus(ctx, projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	model := newStatusModel(srv, activated.ProjectName)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

type statusTickMsg time.Time

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

// statusModel is the bubbletea model backing docserver status --watch. It
// polls the active project's Embedding Client health and File Watcher
// queue depth once a second and redraws.
type statusModel struct {
	srv         *mcp.Server
	projectName string
	generator   string
	available   bool
	queueDepth  int
	polls       int
}

func newStatusModel(srv *mcp.Server, projectName string) *statusModel {
	return &statusModel{srv: srv, projectName: projectName, generator: "unknown"}
}

func (m *statusModel) Init() tea.Cmd {
	return statusTick()
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusTickMsg:
		if snap, ok := m.srv.HealthSnapshot(); ok {
			m.generator = snap.State
			m.available = snap.Available
		}
		if depth, ok := m.srv.QueueDepth(); ok {
			m.queueDepth = depth
		}
		m.polls++
		return m, statusTick()
	}
	return m, nil
}

func (m *statusModel) View() string {
	genColor := colorRed
	if m.available {
		genColor = colorLime
	}
	genStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(genColor)).Bold(true)

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(colorDarkGray)).
		Padding(0, 1)

	body := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("project:       %s", m.projectName),
		fmt.Sprintf("generator:     %s", genStyle.Render(m.generator)),
		fmt.Sprintf("watcher queue: %d", m.queueDepth),
		"",
		"press q to quit",
	)

	return panel.Render(body)
}
