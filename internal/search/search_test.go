package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

const testDims = 4

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int                { return testDims }
func (fakeEmbedder) ModelName() string              { return "fake" }
func (fakeEmbedder) Available(context.Context) bool { return true }
func (fakeEmbedder) Close() error                   { return nil }

func vectorFor(text string) []float32 {
	switch text {
	case "query":
		return []float32{1, 0, 0, 0}
	case "close":
		return []float32{0.9, 0.1, 0, 0}
	case "far":
		return []float32{0, 0, 0, 1}
	default:
		return []float32{0.5, 0.5, 0, 0}
	}
}

func testKey(project string) tenant.Key {
	return tenant.Key{ProjectName: project, BranchName: "main", PathHash: "hash"}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	meta, err := store.NewSQLiteMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	vec := store.NewHNSWVectorStore(store.DefaultVectorStoreConfig(testDims))
	st := store.New(meta, vec)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedDocument(t *testing.T, st *store.Store, key tenant.Key, relPath, embedText string) {
	t.Helper()
	now := time.Now()
	doc := &docparse.Document{
		ID:           "doc-" + relPath,
		TenantKey:    key,
		RelativePath: relPath,
		DocType:      "problem",
		Title:        relPath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Upsert(context.Background(), doc, vectorFor(embedText), nil, nil))
}

func TestService_Search_ReturnsClosestFirst(t *testing.T) {
	st := newTestStore(t)
	key := testKey("proj")
	seedDocument(t, st, key, "close.md", "close")
	seedDocument(t, st, key, "far.md", "far")

	svc := New(fakeEmbedder{}, st)
	hits, err := svc.Search(context.Background(), "query", store.SearchFilter{TenantKey: key}, 10, 0)

	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "close.md", hits[0].Document.RelativePath)
}

func TestService_Search_DropsBelowMinScore(t *testing.T) {
	st := newTestStore(t)
	key := testKey("proj")
	seedDocument(t, st, key, "close.md", "close")
	seedDocument(t, st, key, "far.md", "far")

	svc := New(fakeEmbedder{}, st)
	hits, err := svc.Search(context.Background(), "query", store.SearchFilter{TenantKey: key}, 10, 0.9)

	require.NoError(t, err)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, float32(0.9))
	}
}

func TestService_Search_ClampsLimitToMax(t *testing.T) {
	st := newTestStore(t)
	key := testKey("proj")
	seedDocument(t, st, key, "a.md", "close")

	svc := New(fakeEmbedder{}, st)
	hits, err := svc.Search(context.Background(), "query", store.SearchFilter{TenantKey: key}, MaxLimit+50, 0)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), MaxLimit)
}

func TestService_Search_ExplicitZeroLimitReturnsEmpty(t *testing.T) {
	st := newTestStore(t)
	key := testKey("proj")
	seedDocument(t, st, key, "close.md", "close")

	svc := New(fakeEmbedder{}, st)
	hits, err := svc.Search(context.Background(), "query", store.SearchFilter{TenantKey: key}, 0, 0)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestService_Search_ResultsOrderedByScoreDescending(t *testing.T) {
	st := newTestStore(t)
	key := testKey("proj")
	seedDocument(t, st, key, "close.md", "close")
	seedDocument(t, st, key, "mid.md", "mid")
	seedDocument(t, st, key, "far.md", "far")

	svc := New(fakeEmbedder{}, st)
	hits, err := svc.Search(context.Background(), "query", store.SearchFilter{TenantKey: key}, 10, 0)

	require.NoError(t, err)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}
