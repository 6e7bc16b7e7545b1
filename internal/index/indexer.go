// Package index orchestrates bringing the Vector Store into agreement
// with a single file's current contents: read, parse, embed, upsert,
// and rebuild the file's outgoing link edges.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/graph"
	"github.com/Aman-CERP/amanmcp/internal/schema"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// Status describes the outcome of indexing one path.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusDeleted Status = "deleted"
)

// Result reports what IndexPath or DeletePath actually did.
type Result struct {
	RelativePath string
	Status       Status
}

// Indexer ties docparse, the embedder, the Vector Store, and the Link
// Graph together for a single tenant-scoped docs root.
type Indexer struct {
	docsRoot string
	registry *schema.Registry
	embedder embed.Embedder
	store    *store.Store
	graph    *graph.Graph
	logger   *slog.Logger
}

// New constructs an Indexer rooted at docsRoot.
func New(docsRoot string, registry *schema.Registry, embedder embed.Embedder, st *store.Store, g *graph.Graph, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		docsRoot: docsRoot,
		registry: registry,
		embedder: embedder,
		store:    st,
		graph:    g,
		logger:   logger,
	}
}

// IndexPath implements spec.md §4.4's algorithm for a single file. On
// SchemaValidationFailed or EmbeddingUnavailable the store is left
// untouched and a tagged error is returned (parse errors as is, embedder
// errors wrapped as EmbeddingUnavailable) so the caller (File Watcher
// dispatch) can decide whether to defer the event.
func (ix *Indexer) IndexPath(ctx context.Context, key tenant.Key, relativePath string) (Result, error) {
	absPath := filepath.Join(ix.docsRoot, filepath.FromSlash(relativePath))

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return Result{}, errors.Wrap(errors.TagFileSystemError, "failed to read document", err)
	}

	contentHash := docparse.HashContent(raw)

	existing, err := ix.store.GetDocument(ctx, key, relativePath)
	if err != nil && errors.GetTag(err) != errors.TagDocumentNotFound {
		return Result{}, err
	}
	if existing != nil && existing.ContentHash == contentHash {
		return Result{RelativePath: relativePath, Status: StatusSkipped}, nil
	}

	doc, chunks, links, err := docparse.Parse(key, ix.docsRoot, relativePath, raw, ix.registry, ix.logger)
	if err != nil {
		return Result{}, err
	}

	docVector, err := ix.embedder.Embed(ctx, embeddingTextFor(doc))
	if err != nil {
		return Result{}, errors.Wrap(errors.TagEmbeddingUnavailable, "failed to embed document body", err)
	}

	chunkVectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vec, err := ix.embedder.Embed(ctx, c.Text)
		if err != nil {
			return Result{}, errors.Wrap(errors.TagEmbeddingUnavailable, "failed to embed chunk", err)
		}
		chunkVectors[i] = vec
	}

	if err := ix.store.Upsert(ctx, doc, docVector, chunks, chunkVectors); err != nil {
		return Result{}, err
	}

	toSet := make([]string, 0, len(links))
	for _, l := range links {
		toSet = append(toSet, l.ToRelativePath)
	}
	ix.graph.ReplaceOutEdges(key, relativePath, toSet)

	return Result{RelativePath: relativePath, Status: StatusIndexed}, nil
}

// DeletePath removes a document from the store and its node from the
// Link Graph.
func (ix *Indexer) DeletePath(ctx context.Context, key tenant.Key, relativePath string) (Result, error) {
	if err := ix.store.Delete(ctx, key, relativePath); err != nil {
		return Result{}, err
	}
	ix.graph.RemoveNode(key, relativePath)
	return Result{RelativePath: relativePath, Status: StatusDeleted}, nil
}

// embeddingTextFor derives the deterministic text embedded for a
// document's own vector: title followed by body, concatenation order
// fixed regardless of what other frontmatter fields are present.
func embeddingTextFor(doc *docparse.Document) string {
	return doc.Title + "\n\n" + doc.Body
}
