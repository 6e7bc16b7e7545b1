// Package search implements the Search Service: similarity search with
// tenant isolation and score thresholding over documents and chunks.
package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// DefaultMinScore and DefaultLimit are the plain-search defaults; RAG
// retrieval uses its own defaults (see internal/rag).
const (
	DefaultMinScore = 0.5
	DefaultLimit    = 10
	MaxLimit        = 50
)

// HitKind distinguishes a document-level hit from a chunk-level hit.
type HitKind string

const (
	HitDocument HitKind = "document"
	HitChunk    HitKind = "chunk"
)

// Hit is one scored search result, merged across documents and chunks.
type Hit struct {
	Kind       HitKind
	Document   *docparse.Document
	Chunk      *docparse.Chunk
	HeaderPath string
	Score      float32
}

// Service runs similarity search against the Vector Store.
type Service struct {
	embedder embed.Embedder
	store    *store.Store
}

// New constructs a Service.
func New(embedder embed.Embedder, st *store.Store) *Service {
	return &Service{embedder: embedder, store: st}
}

// Search implements spec.md §4.6: embed the query, fetch documents and
// chunks in parallel (each oversampled 2x to survive threshold
// filtering), drop anything below minScore, merge, and return at most
// limit hits ordered by score descending. limit is clamped to MaxLimit;
// an explicit limit of 0 (or less) returns an empty result set rather
// than falling back to DefaultLimit — callers resolve "caller omitted
// limit" to DefaultLimit themselves before calling Search.
func (s *Service) Search(ctx context.Context, query string, filter store.SearchFilter, limit int, minScore float32) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fetchLimit := limit * 2

	var docs []*docparse.Document
	var docScores []float32
	var chunks []*docparse.Chunk
	var chunkScores []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, docScores, err = s.store.SearchDocuments(gctx, vec, filter, fetchLimit)
		return err
	})
	g.Go(func() error {
		var err error
		chunks, chunkScores, err = s.store.SearchChunks(gctx, vec, filter.TenantKey, fetchLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []Hit
	for i, d := range docs {
		if docScores[i] < minScore {
			continue
		}
		hits = append(hits, Hit{Kind: HitDocument, Document: d, Score: docScores[i]})
	}
	for i, c := range chunks {
		if chunkScores[i] < minScore {
			continue
		}
		hits = append(hits, Hit{Kind: HitChunk, Chunk: c, HeaderPath: c.HeaderPath, Score: chunkScores[i]})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
