package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	docerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// fakeGeneratorServer stands in for the Ollama-compatible embedding
// service: it returns a deterministic, full-dimension vector per input so
// semantic_search and rag_query can tell "kubernetes" and "postgres"
// content apart without a real model.
func fakeGeneratorServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input any `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var texts []string
		switch v := req.Input.(type) {
		case string:
			texts = []string{v}
		case []any:
			for _, item := range v {
				texts = append(texts, item.(string))
			}
		}

		embeddings := make([][]float64, len(texts))
		for i, text := range texts {
			embeddings[i] = fakeVector(text)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeVector returns a 1024-dim vector pointing along a fixed axis chosen
// by keyword, so cosine similarity cleanly separates unrelated topics.
func fakeVector(text string) []float64 {
	vec := make([]float64, embed.Dimensions)
	switch {
	case containsFold(text, "kubernetes"):
		vec[0] = 1
	case containsFold(text, "postgres"):
		vec[1] = 1
	default:
		vec[2] = 1
	}
	return vec
}

func containsFold(s, substr string) bool {
	sl, subl := []rune(s), []rune(substr)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	sl, subl = toLower(sl), toLower(subl)
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			if sl[i+j] != subl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// newTestServer builds a project directory with a valid config.json, points
// the Embedding Client at a fake generator, and returns a ready-to-activate
// Server plus the project root.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	srv := fakeGeneratorServer(t)
	t.Setenv("DOCSERVER_EMBEDDING_ENDPOINT", srv.URL)

	root := t.TempDir()
	cfgDir := filepath.Join(root, config.ConfigDirName)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	cfgJSON := `{"project_name": "testproj"}`
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, config.ConfigFileName), []byte(cfgJSON), 0o644))

	s := NewServer(slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = s.Close() })
	return s, root
}

func writeMarkdown(t *testing.T, root, relPath, frontmatter, body string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	content := "---\n" + frontmatter + "---\n\n" + body + "\n"
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestServer_ToolsRequireActivation(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleSemanticSearch(ctx, nil, SemanticSearchInput{Query: "anything"})
	require.Error(t, err)
	merr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, docerrors.TagProjectNotActivated, merr.Tag)

	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "foo.md"})
	require.Error(t, err)
	merr, ok = err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, docerrors.TagProjectNotActivated, merr.Tag)
}

func TestServer_ActivateProject_RejectsEmptyRootPath(t *testing.T) {
	s, _ := newTestServer(t)
	_, _, err := s.handleActivateProject(context.Background(), nil, ActivateProjectInput{})
	require.Error(t, err)
	merr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, docerrors.TagInvalidArgument, merr.Tag)
}

func TestServer_ActivateProject_Succeeds(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)
	assert.Equal(t, "testproj", out.ProjectName)
	assert.Equal(t, "main", out.BranchName)
	assert.True(t, out.WatcherStarted)
	assert.Contains(t, out.DocTypes, "problem")
}

func TestServer_IndexDocumentThenSemanticSearch(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n",
		"Notes about running workloads on kubernetes clusters.")

	_, idxOut, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)
	assert.Equal(t, "tool", idxOut.DocType)
	assert.False(t, idxOut.Reindexed)
	assert.Equal(t, 0, idxOut.ChunkCount) // one-line body is below the chunking threshold

	_, searchOut, err := s.handleSemanticSearch(ctx, nil, SemanticSearchInput{Query: "kubernetes clusters", MinRelevanceScore: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, searchOut.Hits)
	found := false
	for _, h := range searchOut.Hits {
		if h.RelativePath == "k8s.md" {
			found = true
		}
	}
	assert.True(t, found)

	// re-indexing the same path reports Reindexed true.
	_, idxOut2, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)
	assert.True(t, idxOut2.Reindexed)
}

func TestServer_SemanticSearch_ExplicitZeroLimitReturnsEmpty(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n",
		"Notes about running workloads on kubernetes clusters.")
	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)

	zero := 0
	_, searchOut, err := s.handleSemanticSearch(ctx, nil, SemanticSearchInput{Query: "kubernetes clusters", Limit: &zero, MinRelevanceScore: 0.1})
	require.NoError(t, err)
	assert.Empty(t, searchOut.Hits)

	// omitting limit entirely still falls back to search.DefaultLimit.
	_, searchOut2, err := s.handleSemanticSearch(ctx, nil, SemanticSearchInput{Query: "kubernetes clusters", MinRelevanceScore: 0.1})
	require.NoError(t, err)
	assert.NotEmpty(t, searchOut2.Hits)
}

func TestServer_DeleteDocuments_PartialFailureReported(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n", "kubernetes content")
	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)

	_, delOut, err := s.handleDeleteDocuments(ctx, nil, DeleteDocumentsInput{Paths: []string{"k8s.md", "../escape.md"}})
	require.NoError(t, err)
	assert.Contains(t, delOut.Deleted, "k8s.md")
	assert.Contains(t, delOut.Failed, "../escape.md")
}

func TestServer_UpdatePromotionLevel(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n", "kubernetes content")
	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)

	_, out, err := s.handleUpdatePromotionLevel(ctx, nil, UpdatePromotionLevelInput{Path: "k8s.md", Level: "critical"})
	require.NoError(t, err)
	assert.Equal(t, "critical", out.Level)

	_, idxOut, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)
	assert.Equal(t, "critical", idxOut.PromotionLevel)
}

func TestServer_ListDocTypes(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n", "kubernetes content")
	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)

	_, out, err := s.handleListDocTypes(ctx, nil, ListDocTypesInput{})
	require.NoError(t, err)
	var toolCount int
	for _, dt := range out.DocTypes {
		if dt.Name == "tool" {
			toolCount = dt.DocumentCount
		}
	}
	assert.Equal(t, 1, toolCount)
}

func TestServer_RAGQuery_ReturnsRankedSources(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	writeMarkdown(t, root, "k8s.md", "title: Kubernetes Notes\ndoc_type: tool\n",
		"Notes about running workloads on kubernetes clusters.")
	writeMarkdown(t, root, "pg.md", "title: Postgres Notes\ndoc_type: tool\n",
		"Notes about tuning postgres connection pools.")

	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "k8s.md"})
	require.NoError(t, err)
	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: "pg.md"})
	require.NoError(t, err)

	_, out, err := s.handleRAGQuery(ctx, nil, RAGQueryInput{Query: "kubernetes clusters", MinRelevanceScore: 0.1, IncludeCritical: false})
	require.NoError(t, err)
	require.NotEmpty(t, out.Sources)
	assert.Equal(t, "k8s.md", out.Sources[0].RelativePath)
}

func TestServer_SearchExternalDocs_ErrorsWithoutExternalDocsConfigured(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	_, _, err = s.handleSearchExternalDocs(ctx, nil, SearchExternalDocsInput{Query: "kubernetes"})
	require.Error(t, err)
	merr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.NotEqual(t, docerrors.TagProjectNotActivated, merr.Tag)
}

func TestServer_ActivatingNewProjectTearsDownPrevious(t *testing.T) {
	s, root := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root})
	require.NoError(t, err)

	root2 := t.TempDir()
	cfgDir := filepath.Join(root2, config.ConfigDirName)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, config.ConfigFileName), []byte(`{"project_name": "second"}`), 0o644))

	_, out, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: root2})
	require.NoError(t, err)
	assert.Equal(t, "second", out.ProjectName)

	// the first project's documents are gone from the now-active tenant.
	_, searchOut, err := s.handleSemanticSearch(ctx, nil, SemanticSearchInput{Query: "kubernetes", MinRelevanceScore: 0.0})
	require.NoError(t, err)
	assert.Empty(t, searchOut.Hits)
}
