package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// HNSWVectorStore implements VectorStore with one coder/hnsw graph per
// (tenant, collection) pair. coder/hnsw has no native attribute filtering,
// so keeping documents, chunks, and external documents in separate graphs
// is what gives Search tenant and collection isolation without a
// post-filter pass over mixed results.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	cfg    VectorStoreConfig
	graphs map[string]*tenantGraph
}

type tenantGraph struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

func newTenantGraph(cfg VectorStoreConfig) *tenantGraph {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return &tenantGraph{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// NewHNSWVectorStore creates an empty multi-tenant vector store. Graphs are
// created lazily on first use of a (tenant, collection) pair.
func NewHNSWVectorStore(cfg VectorStoreConfig) *HNSWVectorStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWVectorStore{
		cfg:    cfg,
		graphs: make(map[string]*tenantGraph),
	}
}

func graphKey(key tenant.Key, collection Collection) string {
	return key.String() + "/" + string(collection)
}

func (s *HNSWVectorStore) graphFor(key tenant.Key, collection Collection) *tenantGraph {
	gk := graphKey(key, collection)

	s.mu.RLock()
	g, ok := s.graphs[gk]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.graphs[gk]; ok {
		return g
	}
	g = newTenantGraph(s.cfg)
	s.graphs[gk] = g
	return g
}

var _ VectorStore = (*HNSWVectorStore)(nil)

// Upsert inserts or replaces a vector. Replacement uses lazy deletion
// (orphaning the old key rather than removing it from the graph) to avoid
// coder/hnsw's instability when the last node in a graph is deleted.
func (s *HNSWVectorStore) Upsert(key tenant.Key, collection Collection, id string, vector []float32) error {
	if len(vector) != s.cfg.Dimensions {
		return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(vector)}
	}

	g := s.graphFor(key, collection)
	g.mu.Lock()
	defer g.mu.Unlock()

	if existingKey, exists := g.idMap[id]; exists {
		delete(g.keyMap, existingKey)
		delete(g.idMap, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	newKey := g.nextKey
	g.nextKey++
	g.graph.Add(hnsw.MakeNode(newKey, vec))
	g.idMap[id] = newKey
	g.keyMap[newKey] = id

	return nil
}

// Delete removes vectors by ID within a tenant's collection.
func (s *HNSWVectorStore) Delete(key tenant.Key, collection Collection, ids []string) error {
	g := s.graphFor(key, collection)
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if k, exists := g.idMap[id]; exists {
			delete(g.keyMap, k)
			delete(g.idMap, id)
		}
	}
	return nil
}

// Search returns the topK nearest neighbors to query within a tenant's
// collection.
func (s *HNSWVectorStore) Search(key tenant.Key, collection Collection, query []float32, topK int) ([]SearchResult, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	g := s.graphFor(key, collection)
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Lazily-deleted nodes remain in the graph, so oversample before
	// dropping orphans to still return up to topK live results.
	nodes := g.graph.Search(q, topK*4+topK)

	results := make([]SearchResult, 0, topK)
	for _, node := range nodes {
		if len(results) == topK {
			break
		}
		id, exists := g.keyMap[node.Key]
		if !exists {
			continue
		}
		dist := g.graph.Distance(q, node.Value)
		score := 1 - dist
		if score < 0 {
			score = 0
		}
		results = append(results, SearchResult{
			ID:       id,
			Distance: dist,
			Score:    score,
		})
	}
	return results, nil
}

// Count returns the number of live (non-orphaned) vectors.
func (s *HNSWVectorStore) Count(key tenant.Key, collection Collection) int {
	g := s.graphFor(key, collection)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.idMap)
}

// Close is a no-op: coder/hnsw graphs need no explicit teardown, and
// persistence is handled by the Indexer re-embedding on restart rather than
// an on-disk graph snapshot (spec.md carries no durable-index-file
// requirement for the vector half; SQLite is the durable record).
func (s *HNSWVectorStore) Close() error {
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
