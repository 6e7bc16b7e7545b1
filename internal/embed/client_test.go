package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

func fixedDimVector(n int, fill float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = fill
	}
	return v
}

func embedHandler(t *testing.T, status int, dims int) (*httptest.Server, *int32) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}

		var n int
		switch v := req.Input.(type) {
		case string:
			n = 1
		case []any:
			n = len(v)
		}

		resp := embedResponse{}
		for i := 0; i < n; i++ {
			resp.Embeddings = append(resp.Embeddings, fixedDimVector(dims, 0.5))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return srv, &calls
}

func testClient(endpoint string) *Client {
	return NewClient(Config{
		Endpoint:   endpoint,
		MaxRetries: 2,
		Timeout:    2 * time.Second,
	})
}

func TestEmbed_EmptyInput_ReturnsInvalidArgument(t *testing.T) {
	c := testClient("http://unused")
	_, err := c.Embed(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.TagInvalidArgument, errors.GetTag(err))
}

func TestEmbedBatch_EmptySlice_ReturnsInvalidArgument(t *testing.T) {
	c := testClient("http://unused")
	_, err := c.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.TagInvalidArgument, errors.GetTag(err))
}

func TestEmbedBatch_ContainsEmptyString_ReturnsInvalidArgument(t *testing.T) {
	c := testClient("http://unused")
	_, err := c.EmbedBatch(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	assert.Equal(t, errors.TagInvalidArgument, errors.GetTag(err))
}

func TestEmbed_Success_ReturnsNormalizedVector(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusOK, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	vec, err := c.Embed(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Len(t, vec, Dimensions)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.InDelta(t, 1.0, vectorMagnitude(vec), 0.0001, "embedding should be unit-normalized")
}

func TestEmbedBatch_Success_ReturnsOneVectorPerText(t *testing.T) {
	srv, _ := embedHandler(t, http.StatusOK, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, Dimensions)
	}
}

func TestEmbed_WrongDimension_FailsWithoutRetry(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusOK, 7)
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, errors.TagInternal, errors.GetTag(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "dimension mismatch is permanent, should not retry")
}

func TestEmbed_ServerError_RetriesThenFailsUnavailable(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusInternalServerError, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, errors.TagEmbeddingUnavailable, errors.GetTag(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls), "expected initial attempt plus MaxRetries")
}

func TestEmbed_BadRequest_FailsWithoutRetry(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusBadRequest, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "4xx other than 429 is permanent")
}

func TestEmbed_TooManyRequests_Retries(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusTooManyRequests, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestEmbed_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv, calls := embedHandler(t, http.StatusInternalServerError, Dimensions)
	defer srv.Close()

	c := NewClient(Config{
		Endpoint:            srv.URL,
		MaxRetries:          0,
		Timeout:             2 * time.Second,
		BreakerMaxFailures:  2,
		BreakerResetTimeout: time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := c.Embed(context.Background(), "hello")
		require.Error(t, err)
	}

	before := atomic.LoadInt32(calls)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, errors.TagEmbeddingUnavailable, errors.GetTag(err))

	de, ok := err.(*errors.DocError)
	require.True(t, ok)
	assert.Equal(t, "open", de.Details["state"])
	assert.Equal(t, before, atomic.LoadInt32(calls), "circuit open should fail fast without calling the server")
}

func TestClient_DimensionsAndModelName(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://unused", Model: "custom-model"})
	assert.Equal(t, Dimensions, c.Dimensions())
	assert.Equal(t, "custom-model", c.ModelName())
}

func TestClient_Available_TrueWhenReachable(t *testing.T) {
	srv, _ := embedHandler(t, http.StatusOK, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	assert.True(t, c.Available(context.Background()))
}

func TestClient_Available_FalseAfterClose(t *testing.T) {
	srv, _ := embedHandler(t, http.StatusOK, Dimensions)
	defer srv.Close()

	c := testClient(srv.URL)
	require.NoError(t, c.Close())
	assert.False(t, c.Available(context.Background()))
}

func TestUnreachableHint_OnlyAddedOnDarwinArm64(t *testing.T) {
	c := testClient("http://unused")
	msg := c.unreachableHint("connection refused")
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		assert.Contains(t, msg, "natively running")
	} else {
		assert.Equal(t, "connection refused", msg)
	}
}
