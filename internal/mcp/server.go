// Package mcp implements the Model Context Protocol server exposing the
// nine docserver tools over stdio: activate_project, index_document,
// semantic_search, rag_query, search_external_docs, rag_query_external,
// list_doc_types, delete_documents, and update_promotion_level.
package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanmcp/internal/rag"
	"github.com/Aman-CERP/amanmcp/internal/search"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
	"github.com/Aman-CERP/amanmcp/pkg/version"
)

// Server wraps the MCP SDK server and the single active-project
// activation. Only one project can be activated per process (spec.md
// §4.12); activating a new one tears down the previous one's Watcher,
// Store, and Health Monitor first.
type Server struct {
	mcp    *mcp.Server
	tenant *tenant.Context
	logger *slog.Logger

	mu   sync.RWMutex
	live *activation
}

// NewServer constructs an MCP server with every tool registered but no
// project activated yet.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tenant: tenant.NewContext(),
		logger: logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "docserver",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Close tears down the active project, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		s.live.Close()
		s.tenant.Deactivate()
		s.live = nil
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "activate_project",
		Description: "Activate a project rooted at root_path: loads config.json, rebuilds the vector index, and starts the file watcher. Must be called before any other tool.",
	}, s.handleActivateProject)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_document",
		Description: "Index (or re-index) a single markdown document by relative path. Reads the file, validates frontmatter against its doc_type schema, chunks the body, and stores embeddings.",
	}, s.handleIndexDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Search indexed documents and chunks by semantic similarity. Returns ranked hits across documents and their sub-sections.",
	}, s.handleSemanticSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_query",
		Description: "Assemble a ranked, deduplicated context set for a natural-language question: critical documents first, then relevance-ranked sources, with linked documents pulled in up to the configured depth.",
	}, s.handleRAGQuery)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_external_docs",
		Description: "Like semantic_search, but scoped to the separately indexed external documentation collection (no promotion levels).",
	}, s.handleSearchExternalDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_query_external",
		Description: "Like rag_query, but scoped to the external documentation collection.",
	}, s.handleRAGQueryExternal)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_doc_types",
		Description: "List every registered doc type (built-in and custom), its folder, whether it has a frontmatter schema, and how many documents of that type are indexed.",
	}, s.handleListDocTypes)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_documents",
		Description: "Delete one or more indexed documents by relative path, removing their metadata, chunks, and vectors.",
	}, s.handleDeleteDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_promotion_level",
		Description: "Directly change a document's promotion level without re-indexing its content.",
	}, s.handleUpdatePromotionLevel)
}

// active returns the current activation, or notActivated if none exists.
func (s *Server) active() (*activation, *MCPError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return nil, notActivated()
	}
	return s.live, nil
}

func (s *Server) handleActivateProject(ctx context.Context, _ *mcp.CallToolRequest, in ActivateProjectInput) (*mcp.CallToolResult, ActivateProjectOutput, error) {
	if in.RootPath == "" {
		return nil, ActivateProjectOutput{}, invalidArgument("root_path is required")
	}

	s.mu.Lock()
	prev := s.live
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
		s.tenant.Deactivate()
	}

	a, err := buildActivation(ctx, s.tenant, in.RootPath, s.logger)
	if err != nil {
		return nil, ActivateProjectOutput{}, MapError(err)
	}

	s.mu.Lock()
	s.live = a
	s.mu.Unlock()

	return nil, ActivateProjectOutput{
		ProjectName:    a.key.ProjectName,
		BranchName:     a.key.BranchName,
		DocTypes:       a.registry.Names(),
		ExternalDocs:   a.hasExternal,
		WatcherStarted: true,
	}, nil
}

func (s *Server) handleIndexDocument(ctx context.Context, _ *mcp.CallToolRequest, in IndexDocumentInput) (*mcp.CallToolResult, IndexDocumentOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, IndexDocumentOutput{}, merr
	}

	relPath, err := normalizeDocPath(in.RelativePath)
	if err != nil {
		return nil, IndexDocumentOutput{}, MapError(err)
	}

	existing, _ := a.store.GetDocument(ctx, a.key, relPath)

	if _, err := a.indexer.IndexPath(ctx, a.key, relPath); err != nil {
		return nil, IndexDocumentOutput{}, MapError(err)
	}

	doc, err := a.store.GetDocument(ctx, a.key, relPath)
	if err != nil {
		return nil, IndexDocumentOutput{}, MapError(err)
	}
	chunkCount, err := a.store.ChunkCount(ctx, doc.ID)
	if err != nil {
		return nil, IndexDocumentOutput{}, MapError(err)
	}

	return nil, IndexDocumentOutput{
		RelativePath:   relPath,
		DocType:        doc.DocType,
		ChunkCount:     chunkCount,
		PromotionLevel: doc.PromotionLevel,
		Reindexed:      existing != nil,
	}, nil
}

func (s *Server) handleSemanticSearch(ctx context.Context, _ *mcp.CallToolRequest, in SemanticSearchInput) (*mcp.CallToolResult, SemanticSearchOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, SemanticSearchOutput{}, merr
	}
	if in.Query == "" {
		return nil, SemanticSearchOutput{}, invalidArgument("query is required")
	}

	limit := resolveLimit(in.Limit)
	minScore := float32(in.MinRelevanceScore)
	if minScore <= 0 {
		minScore = search.DefaultMinScore
	}

	filter := searchFilterFor(a.key, in.DocTypes, in.PromotionLevels)
	hits, err := a.search.Search(ctx, in.Query, filter, limit, minScore)
	if err != nil {
		return nil, SemanticSearchOutput{}, MapError(err)
	}

	out, err := formatHits(ctx, a, hits)
	if err != nil {
		return nil, SemanticSearchOutput{}, MapError(err)
	}
	return nil, SemanticSearchOutput{Hits: out}, nil
}

func (s *Server) handleRAGQuery(ctx context.Context, _ *mcp.CallToolRequest, in RAGQueryInput) (*mcp.CallToolResult, RAGQueryOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, RAGQueryOutput{}, merr
	}
	if in.Query == "" {
		return nil, RAGQueryOutput{}, invalidArgument("query is required")
	}

	opts := ragOptionsFor(a.key, in.DocTypes, in.MaxSources, in.MinRelevanceScore, in.MinPromotionLevel, in.IncludeCritical)
	ctxSet, err := a.rag.Retrieve(ctx, in.Query, opts)
	if err != nil {
		return nil, RAGQueryOutput{}, MapError(err)
	}
	return nil, RAGQueryOutput{Sources: formatSources(ctxSet)}, nil
}

func (s *Server) handleSearchExternalDocs(ctx context.Context, _ *mcp.CallToolRequest, in SearchExternalDocsInput) (*mcp.CallToolResult, SearchExternalDocsOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, SearchExternalDocsOutput{}, merr
	}
	if !a.hasExternal {
		return nil, SearchExternalDocsOutput{}, MapError(noExternalDocsError())
	}
	if in.Query == "" {
		return nil, SearchExternalDocsOutput{}, invalidArgument("query is required")
	}

	limit := resolveLimit(in.Limit)
	minScore := float32(in.MinRelevanceScore)
	if minScore <= 0 {
		minScore = search.DefaultMinScore
	}

	filter := searchFilterFor(a.externalKey, in.DocTypes, nil)
	hits, err := a.search.Search(ctx, in.Query, filter, limit, minScore)
	if err != nil {
		return nil, SearchExternalDocsOutput{}, MapError(err)
	}
	out, err := formatHits(ctx, a, hits)
	if err != nil {
		return nil, SearchExternalDocsOutput{}, MapError(err)
	}
	return nil, SearchExternalDocsOutput{Hits: out}, nil
}

func (s *Server) handleRAGQueryExternal(ctx context.Context, _ *mcp.CallToolRequest, in RAGQueryExternalInput) (*mcp.CallToolResult, RAGQueryExternalOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, RAGQueryExternalOutput{}, merr
	}
	if !a.hasExternal {
		return nil, RAGQueryExternalOutput{}, MapError(noExternalDocsError())
	}
	if in.Query == "" {
		return nil, RAGQueryExternalOutput{}, invalidArgument("query is required")
	}

	opts := ragOptionsFor(a.externalKey, in.DocTypes, in.MaxSources, in.MinRelevanceScore, "", in.IncludeCritical)
	ctxSet, err := a.rag.Retrieve(ctx, in.Query, opts)
	if err != nil {
		return nil, RAGQueryExternalOutput{}, MapError(err)
	}
	return nil, RAGQueryExternalOutput{Sources: formatSources(ctxSet)}, nil
}

func (s *Server) handleListDocTypes(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocTypesInput) (*mcp.CallToolResult, ListDocTypesOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, ListDocTypesOutput{}, merr
	}
	summaries, err := a.listDocTypes(ctx)
	if err != nil {
		return nil, ListDocTypesOutput{}, MapError(err)
	}
	out := make([]DocTypeOutput, len(summaries))
	for i, sm := range summaries {
		out[i] = DocTypeOutput{Name: sm.Name, Folder: sm.Folder, HasSchema: sm.HasSchema, DocumentCount: sm.DocumentCount}
	}
	return nil, ListDocTypesOutput{DocTypes: out}, nil
}

func (s *Server) handleDeleteDocuments(ctx context.Context, _ *mcp.CallToolRequest, in DeleteDocumentsInput) (*mcp.CallToolResult, DeleteDocumentsOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, DeleteDocumentsOutput{}, merr
	}
	if len(in.Paths) == 0 {
		return nil, DeleteDocumentsOutput{}, invalidArgument("paths must contain at least one entry")
	}

	out := DeleteDocumentsOutput{}
	for _, p := range in.Paths {
		relPath, err := normalizeDocPath(p)
		if err != nil {
			if out.Failed == nil {
				out.Failed = map[string]string{}
			}
			out.Failed[p] = err.Error()
			continue
		}
		if err := a.store.Delete(ctx, a.key, relPath); err != nil {
			if out.Failed == nil {
				out.Failed = map[string]string{}
			}
			out.Failed[p] = err.Error()
			continue
		}
		out.Deleted = append(out.Deleted, relPath)
	}
	return nil, out, nil
}

func (s *Server) handleUpdatePromotionLevel(ctx context.Context, _ *mcp.CallToolRequest, in UpdatePromotionLevelInput) (*mcp.CallToolResult, UpdatePromotionLevelOutput, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, UpdatePromotionLevelOutput{}, merr
	}
	relPath, err := normalizeDocPath(in.Path)
	if err != nil {
		return nil, UpdatePromotionLevelOutput{}, MapError(err)
	}
	if in.Level == "" {
		return nil, UpdatePromotionLevelOutput{}, invalidArgument("level is required")
	}

	if err := a.store.UpdatePromotionLevel(ctx, a.key, relPath, in.Level); err != nil {
		return nil, UpdatePromotionLevelOutput{}, MapError(err)
	}
	return nil, UpdatePromotionLevelOutput{Path: relPath, Level: in.Level}, nil
}

// formatHits resolves chunk hits' parent documents so every row reports a
// relative_path, title, and doc_type regardless of hit granularity.
func formatHits(ctx context.Context, a *activation, hits []search.Hit) ([]SearchHitOutput, error) {
	parents, err := hydrateHits(ctx, a.store, hits)
	if err != nil {
		return nil, err
	}

	out := make([]SearchHitOutput, 0, len(hits))
	for _, h := range hits {
		switch h.Kind {
		case search.HitDocument:
			out = append(out, SearchHitOutput{
				Kind:           string(h.Kind),
				RelativePath:   h.Document.RelativePath,
				Title:          h.Document.Title,
				DocType:        h.Document.DocType,
				PromotionLevel: h.Document.PromotionLevel,
				Text:           h.Document.Summary,
				Score:          float64(h.Score),
			})
		case search.HitChunk:
			row := SearchHitOutput{
				Kind:           string(h.Kind),
				HeaderPath:     h.HeaderPath,
				Text:           h.Chunk.Text,
				PromotionLevel: h.Chunk.PromotionLevel,
				Score:          float64(h.Score),
			}
			if parent, ok := parents[h.Chunk.DocumentID]; ok {
				row.RelativePath = parent.RelativePath
				row.Title = parent.Title
				row.DocType = parent.DocType
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func formatSources(ctxSet *rag.ContextSet) []RAGSourceOutput {
	out := make([]RAGSourceOutput, len(ctxSet.Sources))
	for i, src := range ctxSet.Sources {
		out[i] = RAGSourceOutput{
			Kind:           string(src.Kind),
			RelativePath:   src.RelativePath,
			Title:          src.Title,
			Text:           src.Text,
			PromotionLevel: src.PromotionLevel,
			HeaderPath:     src.HeaderPath,
			Score:          float64(src.Score),
			Critical:       src.Critical,
			LinkedFrom:     src.LinkedFrom,
		}
	}
	return out
}
