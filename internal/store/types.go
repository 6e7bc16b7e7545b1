// Package store provides durable storage for Documents and Chunks: an
// approximate-nearest-neighbor vector index per tenant-and-collection, and
// a SQLite-backed metadata store for the records those vectors point at.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// Collection names the logical partition a vector or metadata row belongs
// to. Each tenant gets its own HNSW graph per collection so that a search
// never has to post-filter across document/chunk boundaries.
type Collection string

const (
	CollectionDocuments         Collection = "documents"
	CollectionChunks            Collection = "chunks"
	CollectionExternalDocuments Collection = "external_documents"
)

// CurrentSchemaVersion is the current SQLite schema version.
const CurrentSchemaVersion = 1

// SearchFilter constrains a vector search to a single tenant and,
// optionally, a subset of doc types and promotion levels. The tenant key is
// mandatory: there is no cross-tenant query (spec.md §4.2).
type SearchFilter struct {
	TenantKey       tenant.Key
	DocTypes        []string
	PromotionLevels []string
}

// SearchResult is one ranked hit from a vector search, before metadata
// hydration.
type SearchResult struct {
	ID       string
	Distance float32
	Score    float32 // 1 - cosine_distance, clamped to [0,1]
}

// ListEntry is the reconciliation-facing projection of a stored document:
// just enough to let the File Watcher decide whether a file changed.
type ListEntry struct {
	RelativePath string
	ContentHash  string
	UpdatedAt    time.Time
}

// VectorStoreConfig configures the HNSW graphs backing a Store.
type VectorStoreConfig struct {
	// Dimensions is the vector width; every inserted vector must match.
	Dimensions int

	// M is HNSW's max connections per layer.
	M int

	// EfSearch is HNSW's query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the fixed
// 1024-dimension embedder described in spec.md §4.1.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch indicates a vector was presented with a width other
// than the store's configured Dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorStore is the approximate-nearest-neighbor half of the persistence
// layer: it knows about vectors and tenant/collection partitioning, nothing
// about document content.
type VectorStore interface {
	// Upsert inserts or replaces the vector for id within the given
	// tenant's collection.
	Upsert(key tenant.Key, collection Collection, id string, vector []float32) error

	// Delete removes vectors by ID from the given tenant's collection.
	Delete(key tenant.Key, collection Collection, ids []string) error

	// Search returns the topK nearest neighbors to query within the given
	// tenant's collection, ranked by score descending.
	Search(key tenant.Key, collection Collection, query []float32, topK int) ([]SearchResult, error)

	// Count returns the number of live vectors in the tenant's collection.
	Count(key tenant.Key, collection Collection) int

	Close() error
}

// MetadataStore persists Document and Chunk records, and the embeddings
// computed for them, in SQLite. SQLite is the durable record; the HNSW
// graphs in VectorStore are an in-memory index rebuilt from here on
// activation.
type MetadataStore interface {
	// UpsertDocument atomically replaces doc's chunk set and upserts doc
	// itself, along with their embeddings, within a single transaction.
	UpsertDocument(ctx context.Context, doc *docparse.Document, docVector []float32, chunks []*docparse.Chunk, chunkVectors [][]float32) error

	// GetDocument fetches a document by tenant and relative path.
	GetDocument(ctx context.Context, key tenant.Key, relativePath string) (*docparse.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, key tenant.Key, relativePath string) error

	// UpdatePromotionLevel changes a document's stored promotion level (and
	// its chunks') in place, without re-embedding or touching content_hash.
	UpdatePromotionLevel(ctx context.Context, key tenant.Key, relativePath, level string) error

	// GetChunksByDocumentID returns the chunk set currently stored for a
	// document, in chunk_index order.
	GetChunksByDocumentID(ctx context.Context, documentID string) ([]*docparse.Chunk, error)

	// GetDocumentsByIDs hydrates search hits in ID order where found;
	// missing IDs are simply omitted.
	GetDocumentsByIDs(ctx context.Context, ids []string) ([]*docparse.Document, error)

	// GetChunksByIDs hydrates chunk search hits.
	GetChunksByIDs(ctx context.Context, ids []string) ([]*docparse.Chunk, error)

	// CountByDocType counts documents of a given doc_type within a tenant.
	CountByDocType(ctx context.Context, key tenant.Key, docType string) (int, error)

	// List enumerates every document for a tenant, for reconciliation.
	List(ctx context.Context, key tenant.Key) ([]ListEntry, error)

	// GetAllEmbeddings returns every stored vector for a tenant's
	// collection, keyed by ID, so the in-memory HNSW graph can be rebuilt
	// on activation.
	GetAllEmbeddings(ctx context.Context, key tenant.Key, collection Collection) (map[string][]float32, error)

	Close() error
}
