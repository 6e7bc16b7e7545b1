package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/graph"
	"github.com/Aman-CERP/amanmcp/internal/health"
	"github.com/Aman-CERP/amanmcp/internal/index"
	"github.com/Aman-CERP/amanmcp/internal/rag"
	"github.com/Aman-CERP/amanmcp/internal/scanner"
	"github.com/Aman-CERP/amanmcp/internal/schema"
	"github.com/Aman-CERP/amanmcp/internal/search"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
	"github.com/Aman-CERP/amanmcp/internal/watcher"
)

// indexDBName is the SQLite file holding every tenant lane's documents and
// chunks, stored alongside config.json under the project's state directory.
const indexDBName = "index.db"

// externalLaneSuffix distinguishes the external-docs tenant lane from the
// project's own docs within the same Store and Graph: both are already
// partitioned by tenant.Key internally, so a second lane needs nothing
// more than a second key.
const externalLaneSuffix = "~external"

// activation holds every per-tenant component built by activate_project.
// A Server has at most one activation at a time; activating a new project
// tears down the previous one first.
type activation struct {
	key      tenant.Key
	cfg      *config.Config
	docsRoot string
	registry *schema.Registry

	embedder embed.Embedder
	breaker  *errors.CircuitBreaker
	health   *health.Monitor

	store   *store.Store
	graph   *graph.Graph
	indexer *index.Indexer
	search  *search.Service
	rag     *rag.Retriever
	watcher *watcher.Service

	hasExternal   bool
	externalKey   tenant.Key
	externalRoot  string
	externalIndex *index.Indexer
}

// buildActivation loads config.json, computes the tenant triple, and wires
// every downstream component (Embedding Client, Vector Store, Link Graph,
// Indexer, Search Service, RAG Retriever, File Watcher) for rootPath.
func buildActivation(ctx context.Context, tenantCtx *tenant.Context, rootPath string, logger *slog.Logger) (*activation, error) {
	cfg, err := config.Load(rootPath, logger)
	if err != nil {
		return nil, err
	}

	key, err := tenantCtx.Activate(rootPath, cfg)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	for _, dt := range cfg.CustomDocTypes {
		registry.RegisterCustom(dt)
	}

	client := embed.NewClient(embed.Config{Endpoint: cfg.Runtime.EmbeddingEndpoint})
	embedder := embed.NewCachedEmbedderWithDefaults(client)

	mon := health.New(client.Breaker(), cfg.Runtime.EmbeddingEndpoint, logger)
	mon.Start()

	stateDir := config.ConfigDir(rootPath)
	meta, err := store.NewSQLiteMetadataStore(filepath.Join(stateDir, indexDBName))
	if err != nil {
		mon.Stop()
		return nil, err
	}
	vec := store.NewHNSWVectorStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	st := store.New(meta, vec)

	if err := st.Rebuild(ctx, key); err != nil {
		_ = st.Close()
		mon.Stop()
		return nil, err
	}

	g := graph.New(logger)
	ix := index.New(rootPath, registry, embedder, st, g, logger)
	searchSvc := search.New(embedder, st)
	retriever := rag.New(searchSvc, st, g)

	a := &activation{
		key:      key,
		cfg:      cfg,
		docsRoot: rootPath,
		registry: registry,
		embedder: embedder,
		breaker:  client.Breaker(),
		health:   mon,
		store:    st,
		graph:    g,
		indexer:  ix,
		search:   searchSvc,
		rag:      retriever,
	}

	var excludePatterns []string
	w, err := watcher.NewService(key, rootPath, ix, st, mon, excludePatterns, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.watcher = w

	if cfg.ExternalDocs != nil && cfg.ExternalDocs.Path != "" {
		externalRoot := cfg.ExternalDocs.Path
		if !filepath.IsAbs(externalRoot) {
			externalRoot = filepath.Join(rootPath, externalRoot)
		}
		externalKey := tenant.Key{
			ProjectName: key.ProjectName,
			BranchName:  key.BranchName + externalLaneSuffix,
			PathHash:    key.PathHash,
		}
		if err := st.Rebuild(ctx, externalKey); err != nil {
			a.Close()
			return nil, err
		}
		a.hasExternal = true
		a.externalKey = externalKey
		a.externalRoot = externalRoot
		a.externalIndex = index.New(externalRoot, registry, embedder, st, g, logger)
	}

	if err := w.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if a.hasExternal {
		if err := reconcileExternal(ctx, a); err != nil {
			logger.Warn("external docs reconciliation failed", slog.String("error", err.Error()))
		}
	}

	return a, nil
}

// reconcileExternal runs a one-time scan-and-index pass over the external
// docs collection. Unlike the project's own docs root, external docs have
// no live File Watcher: spec.md describes them as "separately indexed",
// not separately watched, so activation is the only time they're synced.
func reconcileExternal(ctx context.Context, a *activation) error {
	stored, err := a.store.List(ctx, a.externalKey)
	if err != nil {
		return err
	}
	storedByPath := make(map[string]store.ListEntry, len(stored))
	for _, e := range stored {
		storedByPath[e.RelativePath] = e
	}

	onDisk, err := scanMarkdown(ctx, a.externalRoot)
	if err != nil {
		return errors.Wrap(errors.TagFileSystemError, "failed to scan external docs directory", err)
	}

	var jobs []index.Job
	seen := make(map[string]bool, len(onDisk))
	for _, relPath := range onDisk {
		seen[relPath] = true
		if _, ok := storedByPath[relPath]; !ok {
			jobs = append(jobs, index.Job{TenantKey: a.externalKey, RelativePath: relPath})
		}
	}
	for relPath := range storedByPath {
		if !seen[relPath] {
			jobs = append(jobs, index.Job{TenantKey: a.externalKey, RelativePath: relPath, Delete: true})
		}
	}
	if len(jobs) == 0 {
		return nil
	}
	_, err = a.externalIndex.RunBatch(ctx, jobs, index.DefaultConcurrency)
	return err
}

// scanMarkdown walks the external docs root and returns every markdown file,
// relative to root, respecting .gitignore the same way the project's own
// docs root does.
func scanMarkdown(ctx context.Context, root string) ([]string, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}

	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  []string{"*.md"},
		RespectGitignore: true,
	})
	if err != nil {
		return nil, err
	}

	var paths []string
	for res := range results {
		if res.Error != nil {
			return nil, res.Error
		}
		paths = append(paths, filepath.ToSlash(res.File.Path))
	}
	return paths, nil
}

// Close tears down every component started by buildActivation. Safe to call
// on a partially constructed activation.
func (a *activation) Close() {
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// docTypeSummary is one row of list_doc_types' output.
type docTypeSummary struct {
	Name           string
	Folder         string
	HasSchema      bool
	DocumentCount  int
}

func (a *activation) listDocTypes(ctx context.Context) ([]docTypeSummary, error) {
	names := a.registry.Names()
	out := make([]docTypeSummary, 0, len(names))
	for _, name := range names {
		sc, _ := a.registry.Get(name)
		count, err := a.store.CountByDocType(ctx, a.key, name)
		if err != nil {
			return nil, err
		}
		out = append(out, docTypeSummary{
			Name:          name,
			Folder:        sc.Folder,
			HasSchema:     len(sc.RequiredFields) > 0 || len(sc.OptionalFields) > 0,
			DocumentCount: count,
		})
	}
	return out, nil
}

// normalizeDocPath validates relative_path per spec.md §4.12: relative,
// under the docs root, .md extension, no ".." segments.
func normalizeDocPath(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.New(errors.TagInvalidArgument, "relative_path is required")
	}
	clean := filepath.ToSlash(filepath.Clean(relPath))
	if filepath.IsAbs(clean) {
		return "", errors.New(errors.TagInvalidArgument, "relative_path must not be absolute")
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", errors.New(errors.TagInvalidArgument, "relative_path must not contain '..' segments")
		}
	}
	if filepath.Ext(clean) != ".md" {
		return "", errors.New(errors.TagInvalidArgument, "relative_path must have a .md extension")
	}
	return clean, nil
}

// promotionOrder mirrors internal/schema's promotion level ranking:
// standard < important < critical.
var promotionOrder = []string{"standard", "important", "critical"}

// promotionLevelsAtOrAbove expands a minimum promotion level into the set
// of levels that satisfy it, per spec.md's minLevel semantics (§ "Promotion
// level semantics"). An empty or unrecognized minLevel matches every level.
func promotionLevelsAtOrAbove(minLevel string) []string {
	if minLevel == "" {
		return nil
	}
	for i, lvl := range promotionOrder {
		if lvl == minLevel {
			return promotionOrder[i:]
		}
	}
	return nil
}

// searchFilterFor builds a store.SearchFilter for a tenant lane.
func searchFilterFor(key tenant.Key, docTypes, promotionLevels []string) store.SearchFilter {
	return store.SearchFilter{TenantKey: key, DocTypes: docTypes, PromotionLevels: promotionLevels}
}

// resolveLimit distinguishes "caller omitted limit" from an explicit
// limit of 0 per spec.md §8: a nil limit falls back to
// search.DefaultLimit, but an explicit 0 is passed through unchanged so
// search.Service.Search returns an empty result set rather than
// defaulting.
func resolveLimit(limit *int) int {
	if limit == nil {
		return search.DefaultLimit
	}
	return *limit
}

// ragOptionsFor builds rag.Options for a tenant lane from tool input.
func ragOptionsFor(key tenant.Key, docTypes []string, maxSources int, minScore float64, minPromotionLevel string, includeCritical bool) rag.Options {
	return rag.Options{
		Filter: store.SearchFilter{
			TenantKey:       key,
			DocTypes:        docTypes,
			PromotionLevels: promotionLevelsAtOrAbove(minPromotionLevel),
		},
		MaxSources:      maxSources,
		MinScore:        float32(minScore),
		IncludeCritical: includeCritical,
		ExpandLinks:     true,
	}
}

// noExternalDocsError reports that external_docs is not configured for the
// active project.
func noExternalDocsError() error {
	return errors.New(errors.TagInvalidArgument, "external_docs is not configured for the active project")
}

// hydrateHits resolves the parent Document for chunk-level hits so the
// tool output can always report relative_path, title, and doc_type
// regardless of whether a hit matched at document or chunk granularity.
func hydrateHits(ctx context.Context, st *store.Store, hits []search.Hit) (map[string]*docparse.Document, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Kind == search.HitChunk && h.Chunk != nil {
			ids = append(ids, h.Chunk.DocumentID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := st.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*docparse.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}
