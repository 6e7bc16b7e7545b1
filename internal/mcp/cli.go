package mcp

import "context"

// The CLI subcommands (docserver index, docserver search, docserver
// status) drive the same activation and tool-handler logic the MCP
// transport uses, just without going through stdio JSON-RPC. These
// exported wrappers are thin: they call the same unexported handlers
// server.go registers as MCP tools, so activation, indexing, and
// search behave identically whether the caller is a client speaking
// MCP or a human running the CLI directly.

// ActivateProject is the CLI-facing equivalent of the activate_project
// tool.
func (s *Server) ActivateProject(ctx context.Context, rootPath string) (ActivateProjectOutput, error) {
	_, out, err := s.handleActivateProject(ctx, nil, ActivateProjectInput{RootPath: rootPath})
	return out, err
}

// IndexDocument is the CLI-facing equivalent of the index_document tool.
func (s *Server) IndexDocument(ctx context.Context, relativePath string) (IndexDocumentOutput, error) {
	_, out, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{RelativePath: relativePath})
	return out, err
}

// SemanticSearch is the CLI-facing equivalent of the semantic_search
// tool.
func (s *Server) SemanticSearch(ctx context.Context, in SemanticSearchInput) (SemanticSearchOutput, error) {
	_, out, err := s.handleSemanticSearch(ctx, nil, in)
	return out, err
}

// ListDocTypes is the CLI-facing equivalent of the list_doc_types tool.
func (s *Server) ListDocTypes(ctx context.Context) (ListDocTypesOutput, error) {
	_, out, err := s.handleListDocTypes(ctx, nil, ListDocTypesInput{})
	return out, err
}

// DiscoverMarkdown lists every markdown file under the active project's
// docs root, relative to root, respecting .gitignore. docserver index
// uses this to walk a tree instead of indexing one path at a time.
func (s *Server) DiscoverMarkdown(ctx context.Context) ([]string, error) {
	a, merr := s.active()
	if merr != nil {
		return nil, merr
	}
	return scanMarkdown(ctx, a.docsRoot)
}

// HealthSnapshot reports the active project's Embedding Client
// reachability, for docserver status.
func (s *Server) HealthSnapshot() (health Snapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil || s.live.health == nil {
		return Snapshot{}, false
	}
	snap := s.live.health.Current()
	return Snapshot{
		Available:    snap.Available,
		State:        snap.State,
		FailureCount: snap.FailureCount,
		PlatformHint: snap.PlatformHint,
	}, true
}

// Snapshot mirrors internal/health.Snapshot's operator-facing fields,
// kept distinct so callers outside internal/mcp don't need to import
// internal/health directly for a read-only status view.
type Snapshot struct {
	Available    bool
	State        string
	FailureCount int
	PlatformHint string
}

// QueueDepth reports the active project's File Watcher's deferred-queue
// depth, for docserver status --watch.
func (s *Server) QueueDepth() (depth int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil || s.live.watcher == nil {
		return 0, false
	}
	return s.live.watcher.QueueDepth(), true
}
