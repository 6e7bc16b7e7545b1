package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/graph"
	"github.com/Aman-CERP/amanmcp/internal/schema"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

const testDims = 4

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return deterministicVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                { return testDims }
func (f *fakeEmbedder) ModelName() string              { return "fake" }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                   { return nil }

func deterministicVector(text string) []float32 {
	v := make([]float32, testDims)
	for i, r := range text {
		v[i%testDims] += float32(r % 7)
	}
	if v[0] == 0 {
		v[0] = 1
	}
	return v
}

type failingEmbedder struct{ fakeEmbedder }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, assertErr
}

var assertErr = errors.New(errors.TagInternal, "embed failed")

func testKey(project string) tenant.Key {
	return tenant.Key{ProjectName: project, BranchName: "main", PathHash: "hash"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(t *testing.T, docsRoot string, embedder interface {
	Embed(context.Context, string) ([]float32, error)
	EmbedBatch(context.Context, []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(context.Context) bool
	Close() error
}) (*Indexer, *store.Store) {
	t.Helper()
	meta, err := store.NewSQLiteMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	vec := store.NewHNSWVectorStore(store.DefaultVectorStoreConfig(testDims))
	st := store.New(meta, vec)
	t.Cleanup(func() { _ = st.Close() })

	g := graph.New(discardLogger())
	registry := schema.NewRegistry()

	return New(docsRoot, registry, embedder, st, g, discardLogger()), st
}

func writeDoc(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestIndexer_IndexPath_IndexesNewDocument(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\nsummary: summary text\n---\nbody here\n")

	ix, _ := newTestIndexer(t, root, &fakeEmbedder{})
	key := testKey("proj")

	res, err := ix.IndexPath(context.Background(), key, "a.md")

	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)
}

func TestIndexer_IndexPath_SkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody\n")

	embedder := &fakeEmbedder{}
	ix, _ := newTestIndexer(t, root, embedder)
	key := testKey("proj")
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, key, "a.md")
	require.NoError(t, err)
	callsAfterFirst := embedder.calls

	res, err := ix.IndexPath(ctx, key, "a.md")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, callsAfterFirst, embedder.calls)
}

func TestIndexer_IndexPath_ReindexesOnContentChange(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody v1\n")

	ix, _ := newTestIndexer(t, root, &fakeEmbedder{})
	key := testKey("proj")
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, key, "a.md")
	require.NoError(t, err)

	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody v2, changed\n")

	res, err := ix.IndexPath(ctx, key, "a.md")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)
}

func TestIndexer_IndexPath_SchemaValidationFailure_DoesNotMutateStore(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\n---\nmissing required title\n")

	ix, st := newTestIndexer(t, root, &fakeEmbedder{})
	key := testKey("proj")
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, key, "a.md")

	require.Error(t, err)
	assert.Equal(t, errors.TagSchemaValidationFail, errors.GetTag(err))

	_, getErr := st.GetDocument(ctx, key, "a.md")
	assert.Equal(t, errors.TagDocumentNotFound, errors.GetTag(getErr))
}

func TestIndexer_IndexPath_EmbeddingUnavailable_DoesNotMutateStore(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody\n")

	ix, st := newTestIndexer(t, root, &failingEmbedder{})
	key := testKey("proj")
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, key, "a.md")

	require.Error(t, err)
	assert.Equal(t, errors.TagEmbeddingUnavailable, errors.GetTag(err))

	_, getErr := st.GetDocument(ctx, key, "a.md")
	assert.Equal(t, errors.TagDocumentNotFound, errors.GetTag(getErr))
}

func TestIndexer_DeletePath_RemovesDocumentAndGraphNode(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody\n")

	ix, st := newTestIndexer(t, root, &fakeEmbedder{})
	key := testKey("proj")
	ctx := context.Background()

	_, err := ix.IndexPath(ctx, key, "a.md")
	require.NoError(t, err)

	res, err := ix.DeletePath(ctx, key, "a.md")
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, res.Status)

	_, getErr := st.GetDocument(ctx, key, "a.md")
	assert.Equal(t, errors.TagDocumentNotFound, errors.GetTag(getErr))
}

func TestIndexer_RunBatch_IndexesAllJobs(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.md", "---\ndoc_type: problem\ntitle: A\n---\nbody a\n")
	writeDoc(t, root, "b.md", "---\ndoc_type: problem\ntitle: B\n---\nbody b\n")

	ix, _ := newTestIndexer(t, root, &fakeEmbedder{})
	key := testKey("proj")

	results, err := ix.RunBatch(context.Background(), []Job{
		{TenantKey: key, RelativePath: "a.md"},
		{TenantKey: key, RelativePath: "b.md"},
	}, 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StatusIndexed, r.Status)
	}
}
