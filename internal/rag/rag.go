// Package rag implements the RAG Retriever: assembling an ordered
// context set for an external generator from critical documents,
// relevance search, chunk merging, and link expansion.
package rag

import (
	"context"
	"sort"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/graph"
	"github.com/Aman-CERP/amanmcp/internal/search"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// RAG retrieval defaults, distinct from plain search's (§4.6).
const (
	DefaultMinScore      = 0.7
	DefaultMaxSources    = 3
	DefaultMaxLinkedDocs = 3
	DefaultMaxLinkDepth  = 2
	criticalPromotion    = "critical"
)

// SourceKind distinguishes how a Source entered the context set.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceChunk    SourceKind = "chunk"
)

// Source is one entry in the assembled context set.
type Source struct {
	Kind           SourceKind
	DocumentID     string
	RelativePath   string
	Title          string
	Text           string
	PromotionLevel string
	HeaderPath     string
	Score          float32
	Critical       bool
	LinkedFrom     string // non-empty iff this source was added by link expansion
}

// ContextSet is the ordered retrieval result returned to the generator.
type ContextSet struct {
	Sources []Source
}

// Options configures a single Retrieve call.
type Options struct {
	Filter          store.SearchFilter
	MaxSources      int
	MinScore        float32
	IncludeCritical bool
	ExpandLinks     bool
	MaxLinkedDocs   int
	MaxLinkDepth    int
}

// WithDefaults fills zero-valued fields with the RAG defaults.
func (o Options) WithDefaults() Options {
	if o.MaxSources <= 0 {
		o.MaxSources = DefaultMaxSources
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	if o.MaxLinkedDocs <= 0 {
		o.MaxLinkedDocs = DefaultMaxLinkedDocs
	}
	if o.MaxLinkDepth <= 0 {
		o.MaxLinkDepth = DefaultMaxLinkDepth
	}
	return o
}

// Retriever assembles context sets for the generator; it never calls one
// itself.
type Retriever struct {
	search *search.Service
	store  *store.Store
	graph  *graph.Graph
}

// New constructs a Retriever.
func New(searchSvc *search.Service, st *store.Store, g *graph.Graph) *Retriever {
	return &Retriever{search: searchSvc, store: st, graph: g}
}

// Retrieve implements spec.md §4.7's five-step algorithm.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*ContextSet, error) {
	opts = opts.WithDefaults()

	included := make(map[string]bool) // document ID -> present
	var critical []Source
	var rest []Source

	// Step 1: prepend critical.
	if opts.IncludeCritical {
		criticalFilter := opts.Filter
		criticalFilter.PromotionLevels = []string{criticalPromotion}
		hits, err := r.search.Search(ctx, query, criticalFilter, opts.MaxSources, 0)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if h.Kind != search.HitDocument {
				continue
			}
			included[h.Document.ID] = true
			critical = append(critical, sourceFromDocument(h.Document, h.Score, true, ""))
		}
	}

	// Steps 2 and 3 draw from the same relevance search: it already
	// returns both document- and chunk-kind hits merged by score.
	relevanceHits, err := r.search.Search(ctx, query, opts.Filter, opts.MaxSources*2, opts.MinScore)
	if err != nil {
		return nil, err
	}

	// Step 2: fill with relevance.
	docByID := make(map[string]Source)
	for _, h := range relevanceHits {
		if h.Kind != search.HitDocument {
			continue
		}
		if included[h.Document.ID] {
			continue
		}
		included[h.Document.ID] = true
		docByID[h.Document.ID] = sourceFromDocument(h.Document, h.Score, false, "")
		if len(included) >= opts.MaxSources+len(critical) {
			break
		}
	}
	for _, src := range docByID {
		rest = append(rest, src)
	}

	// Step 3: chunk merge.
	var chunksByDocID = make(map[string]search.Hit)
	for _, h := range relevanceHits {
		if h.Kind != search.HitChunk {
			continue
		}
		if existing, ok := chunksByDocID[h.Chunk.DocumentID]; !ok || h.Score > existing.Score {
			chunksByDocID[h.Chunk.DocumentID] = h
		}
	}
	if len(chunksByDocID) > 0 {
		parentDocs, err := r.resolveParentDocs(ctx, chunksByDocID)
		if err != nil {
			return nil, err
		}
		for docID, h := range chunksByDocID {
			parent := parentDocs[docID]
			if parent == nil {
				continue
			}
			chunkSource := sourceFromChunk(h.Chunk, parent, h.Score, "")
			if !included[docID] {
				included[docID] = true
				rest = append(rest, chunkSource)
				continue
			}
			for i, existing := range rest {
				if existing.DocumentID == docID && h.Score > existing.Score {
					rest[i] = chunkSource
					break
				}
			}
		}
	}

	// Step 4: link expansion.
	if opts.ExpandLinks {
		expanded, err := r.expandLinks(ctx, opts, rest, included)
		if err != nil {
			return nil, err
		}
		rest = append(rest, expanded...)
	}

	// Step 5: final order — critical first preserving score order, then
	// the remainder by score descending, truncated to MaxSources (link
	// expansion is bounded separately and always kept).
	sort.SliceStable(critical, func(i, j int) bool { return critical[i].Score > critical[j].Score })

	var linkExpanded []Source
	var ranked []Source
	for _, s := range rest {
		if s.LinkedFrom != "" {
			linkExpanded = append(linkExpanded, s)
		} else {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > opts.MaxSources {
		ranked = ranked[:opts.MaxSources]
	}

	result := append(critical, ranked...)
	result = append(result, linkExpanded...)

	return &ContextSet{Sources: result}, nil
}

func (r *Retriever) resolveParentDocs(ctx context.Context, chunksByDocID map[string]search.Hit) (map[string]*docparse.Document, error) {
	ids := make([]string, 0, len(chunksByDocID))
	for id := range chunksByDocID {
		ids = append(ids, id)
	}
	docs, err := r.store.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*docparse.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}

// expandLinks follows outgoing links from every retained document up to
// MaxLinkDepth, fetching up to MaxLinkedDocs documents not already
// present, annotated with LinkedFrom.
func (r *Retriever) expandLinks(ctx context.Context, opts Options, retained []Source, included map[string]bool) ([]Source, error) {
	var expanded []Source
	seen := make(map[string]bool)

	for _, src := range retained {
		if len(expanded) >= opts.MaxLinkedDocs {
			break
		}
		if src.RelativePath == "" {
			continue
		}
		linked := r.graph.Traverse(opts.Filter.TenantKey, src.RelativePath, opts.MaxLinkDepth, opts.MaxLinkedDocs)
		for _, path := range linked {
			if len(expanded) >= opts.MaxLinkedDocs {
				break
			}
			if seen[path] {
				continue
			}
			seen[path] = true

			doc, err := r.store.GetDocument(ctx, opts.Filter.TenantKey, path)
			if err != nil {
				continue
			}
			if included[doc.ID] {
				continue
			}
			included[doc.ID] = true
			expanded = append(expanded, sourceFromDocument(doc, 0, false, src.RelativePath))
		}
	}

	return expanded, nil
}

func sourceFromDocument(doc *docparse.Document, score float32, critical bool, linkedFrom string) Source {
	text := doc.Summary
	if text == "" {
		text = doc.Body
	}
	return Source{
		Kind:           SourceDocument,
		DocumentID:     doc.ID,
		RelativePath:   doc.RelativePath,
		Title:          doc.Title,
		Text:           text,
		PromotionLevel: doc.PromotionLevel,
		Score:          score,
		Critical:       critical,
		LinkedFrom:     linkedFrom,
	}
}

func sourceFromChunk(chunk *docparse.Chunk, parent *docparse.Document, score float32, linkedFrom string) Source {
	return Source{
		Kind:           SourceChunk,
		DocumentID:     chunk.DocumentID,
		RelativePath:   parent.RelativePath,
		Title:          parent.Title,
		Text:           chunk.Text,
		PromotionLevel: chunk.PromotionLevel,
		HeaderPath:     chunk.HeaderPath,
		Score:          score,
		LinkedFrom:     linkedFrom,
	}
}
