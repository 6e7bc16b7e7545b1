package store

import (
	"context"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// Store composes the durable MetadataStore with the in-memory
// HNSWVectorStore to provide spec.md §4.2's Vector Store operations as one
// atomic unit. A document's metadata row, its chunk rows, and their
// respective HNSW entries are kept consistent under a per-tenant lock: a
// reader never observes new-document/old-chunks or vice versa.
type Store struct {
	meta MetadataStore
	vec  *HNSWVectorStore

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New composes a Store from an already-open MetadataStore and
// HNSWVectorStore.
func New(meta MetadataStore, vec *HNSWVectorStore) *Store {
	return &Store{
		meta:  meta,
		vec:   vec,
		locks: make(map[string]*sync.RWMutex),
	}
}

func (s *Store) tenantLock(key tenant.Key) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	k := key.String()
	lock, ok := s.locks[k]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[k] = lock
	}
	return lock
}

// Upsert inserts or replaces a document and its chunk set atomically,
// writing both the durable SQLite record and the in-memory HNSW entries
// under the tenant's write lock. docVector and chunkVectors must already be
// computed (embedding is the Indexer's responsibility).
func (s *Store) Upsert(ctx context.Context, doc *docparse.Document, docVector []float32, chunks []*docparse.Chunk, chunkVectors [][]float32) error {
	if doc.TenantKey == (tenant.Key{}) {
		return errors.New(errors.TagInvalidArgument, "document must carry a tenant key")
	}

	lock := s.tenantLock(doc.TenantKey)
	lock.Lock()
	defer lock.Unlock()

	oldChunks, err := s.meta.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}

	if err := s.meta.UpsertDocument(ctx, doc, docVector, chunks, chunkVectors); err != nil {
		return err
	}

	staleIDs := make([]string, 0, len(oldChunks))
	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
	}
	for _, c := range oldChunks {
		if !keep[c.ID] {
			staleIDs = append(staleIDs, c.ID)
		}
	}
	if len(staleIDs) > 0 {
		if err := s.vec.Delete(doc.TenantKey, CollectionChunks, staleIDs); err != nil {
			return errors.Wrap(errors.TagVectorStoreError, "failed to remove stale chunk vectors", err)
		}
	}

	if err := s.vec.Upsert(doc.TenantKey, CollectionDocuments, doc.ID, docVector); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to index document vector", err)
	}
	for i, c := range chunks {
		if err := s.vec.Upsert(c.TenantKey, CollectionChunks, c.ID, chunkVectors[i]); err != nil {
			return errors.Wrap(errors.TagVectorStoreError, "failed to index chunk vector", err)
		}
	}

	return nil
}

// GetDocument returns the stored document record, used by the Indexer's
// idempotence check to compare content hashes before a full re-parse.
func (s *Store) GetDocument(ctx context.Context, key tenant.Key, relativePath string) (*docparse.Document, error) {
	return s.meta.GetDocument(ctx, key, relativePath)
}

// GetDocumentsByIDs resolves a batch of document IDs, used by the RAG
// Retriever to recover a chunk hit's parent document (title, relative
// path, promotion level) for link expansion and result assembly.
func (s *Store) GetDocumentsByIDs(ctx context.Context, ids []string) ([]*docparse.Document, error) {
	return s.meta.GetDocumentsByIDs(ctx, ids)
}

// Delete removes a document and its chunks from both stores.
func (s *Store) Delete(ctx context.Context, key tenant.Key, relativePath string) error {
	lock := s.tenantLock(key)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.meta.GetDocument(ctx, key, relativePath)
	if err != nil {
		return err
	}
	chunks, err := s.meta.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}

	if err := s.meta.DeleteDocument(ctx, key, relativePath); err != nil {
		return err
	}

	if err := s.vec.Delete(key, CollectionDocuments, []string{doc.ID}); err != nil {
		return errors.Wrap(errors.TagVectorStoreError, "failed to remove document vector", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}
	if len(chunkIDs) > 0 {
		if err := s.vec.Delete(key, CollectionChunks, chunkIDs); err != nil {
			return errors.Wrap(errors.TagVectorStoreError, "failed to remove chunk vectors", err)
		}
	}

	return nil
}

// CountByDocType counts documents of a given doc_type within a tenant.
func (s *Store) CountByDocType(ctx context.Context, key tenant.Key, docType string) (int, error) {
	return s.meta.CountByDocType(ctx, key, docType)
}

// ChunkCount reports how many chunks a document currently has, used by
// index_document to report chunk_count without the caller reaching into
// the metadata store directly.
func (s *Store) ChunkCount(ctx context.Context, documentID string) (int, error) {
	chunks, err := s.meta.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// UpdatePromotionLevel changes a document's stored promotion level
// directly, bypassing the Indexer entirely: no re-parse, no re-embed.
func (s *Store) UpdatePromotionLevel(ctx context.Context, key tenant.Key, relativePath, level string) error {
	lock := s.tenantLock(key)
	lock.Lock()
	defer lock.Unlock()
	return s.meta.UpdatePromotionLevel(ctx, key, relativePath, level)
}

// List enumerates every document for a tenant, for reconciliation.
func (s *Store) List(ctx context.Context, key tenant.Key) ([]ListEntry, error) {
	return s.meta.List(ctx, key)
}

// SearchDocuments returns documents ranked by cosine similarity to
// queryVec, optionally filtered by doc_types and promotion_levels.
func (s *Store) SearchDocuments(ctx context.Context, queryVec []float32, filter SearchFilter, topK int) ([]*docparse.Document, []float32, error) {
	ids, scores, err := s.search(filter.TenantKey, CollectionDocuments, queryVec, topK, filter)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.meta.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	docs, scores = alignDocScores(docs, ids, scores)
	filtered := make([]*docparse.Document, 0, len(docs))
	filteredScores := make([]float32, 0, len(docs))
	for i, d := range docs {
		if !matchesFilter(d.DocType, d.PromotionLevel, filter) {
			continue
		}
		filtered = append(filtered, d)
		filteredScores = append(filteredScores, scores[i])
	}
	return filtered, filteredScores, nil
}

// SearchChunks returns chunks ranked by cosine similarity to queryVec.
// Chunk filtering by doc_type is applied via the parent document, which
// the caller hydrates separately (RAG Retriever does this).
func (s *Store) SearchChunks(ctx context.Context, queryVec []float32, key tenant.Key, topK int) ([]*docparse.Chunk, []float32, error) {
	ids, scores, err := s.search(key, CollectionChunks, queryVec, topK, SearchFilter{TenantKey: key})
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.meta.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	_, scores = alignChunkScores(chunks, ids, scores)
	return chunks, scores, nil
}

func (s *Store) search(key tenant.Key, collection Collection, queryVec []float32, topK int, filter SearchFilter) ([]string, []float32, error) {
	if key == (tenant.Key{}) {
		return nil, nil, errors.New(errors.TagInvalidArgument, "search requires a complete tenant key")
	}

	oversample := topK
	if len(filter.DocTypes) > 0 || len(filter.PromotionLevels) > 0 {
		oversample = topK * 4
	}

	results, err := s.vec.Search(key, collection, queryVec, oversample)
	if err != nil {
		return nil, nil, errors.Wrap(errors.TagVectorStoreError, "vector search failed", err)
	}

	ids := make([]string, len(results))
	scores := make([]float32, len(results))
	for i, r := range results {
		ids[i] = r.ID
		scores[i] = r.Score
	}
	return ids, scores, nil
}

func matchesFilter(docType, promotionLevel string, filter SearchFilter) bool {
	if len(filter.DocTypes) > 0 && !contains(filter.DocTypes, docType) {
		return false
	}
	if len(filter.PromotionLevels) > 0 && !contains(filter.PromotionLevels, promotionLevel) {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func alignDocScores(docs []*docparse.Document, ids []string, scores []float32) ([]*docparse.Document, []float32) {
	scoreByID := make(map[string]float32, len(ids))
	for i, id := range ids {
		scoreByID[id] = scores[i]
	}
	aligned := make([]float32, len(docs))
	for i, d := range docs {
		aligned[i] = scoreByID[d.ID]
	}
	return docs, aligned
}

func alignChunkScores(chunks []*docparse.Chunk, ids []string, scores []float32) ([]*docparse.Chunk, []float32) {
	scoreByID := make(map[string]float32, len(ids))
	for i, id := range ids {
		scoreByID[id] = scores[i]
	}
	aligned := make([]float32, len(chunks))
	for i, c := range chunks {
		aligned[i] = scoreByID[c.ID]
	}
	return chunks, aligned
}

// Rebuild loads every stored embedding for key back into the in-memory
// HNSW graphs. Call once per tenant on activation, before serving search
// traffic, since the vector index itself is not persisted to disk.
func (s *Store) Rebuild(ctx context.Context, key tenant.Key) error {
	for _, collection := range []Collection{CollectionDocuments, CollectionChunks} {
		vectors, err := s.meta.GetAllEmbeddings(ctx, key, collection)
		if err != nil {
			return err
		}
		for id, vec := range vectors {
			if err := s.vec.Upsert(key, collection, id, vec); err != nil {
				return errors.Wrap(errors.TagVectorStoreError, "failed to rebuild vector index", err)
			}
		}
	}
	return nil
}

// Close closes the underlying metadata and vector stores.
func (s *Store) Close() error {
	vecErr := s.vec.Close()
	metaErr := s.meta.Close()
	if metaErr != nil {
		return metaErr
	}
	return vecErr
}
