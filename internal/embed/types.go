package embed

import (
	"context"
	"math"
	"time"
)

// Dimensions is the fixed vector width the generator service must return.
// Any other length is a generator misconfiguration and fails the call.
const Dimensions = 1024

const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding HTTP call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retry attempts for transient failures.
	DefaultMaxRetries = 3

	// DefaultBreakerMaxFailures is the failure count that opens the circuit.
	DefaultBreakerMaxFailures = 5

	// DefaultBreakerResetTimeout is how long the circuit stays open before
	// allowing a half-open probe.
	DefaultBreakerResetTimeout = 30 * time.Second

	// DefaultPoolSize bounds idle HTTP connections kept to the generator.
	DefaultPoolSize = 4
)

// Embedder generates vector embeddings for text by calling a local
// generator service.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension (always Dimensions).
	Dimensions() int

	// ModelName returns the generator's model identifier.
	ModelName() string

	// Available reports whether the generator service is currently reachable.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
