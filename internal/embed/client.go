// Package embed implements the embedding client described in spec.md
// §4.1: a fixed-dimension vector generator reached over HTTP, wrapped
// in retry-with-backoff and a circuit breaker.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// DefaultEndpoint is the generator service's default local address.
const DefaultEndpoint = "http://localhost:11434"

// DefaultModel names the embedding model the generator is expected to
// serve; it is passed through on every request but never auto-discovered
// or substituted — the generator is a fixed local service, not a pool
// of interchangeable backends.
const DefaultModel = "qwen3-embedding:0.6b"

// Config configures Client.
type Config struct {
	Endpoint            string
	Model               string
	Timeout             time.Duration
	MaxRetries          int
	PoolSize            int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.BreakerMaxFailures <= 0 {
		c.BreakerMaxFailures = DefaultBreakerMaxFailures
	}
	if c.BreakerResetTimeout <= 0 {
		c.BreakerResetTimeout = DefaultBreakerResetTimeout
	}
	return c
}

// Client embeds text by calling a local generator service's HTTP API,
// retrying transient failures with backoff and failing fast through a
// circuit breaker once the generator looks unreachable.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	cfg        Config
	breaker    *errors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*Client)(nil)

// NewClient builds a Client. It performs no health check or model
// discovery at construction time — the generator is assumed fixed and
// reachability is discovered lazily on the first Embed call.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		cfg:        cfg,
		breaker: errors.NewCircuitBreaker("embed",
			errors.WithMaxFailures(cfg.BreakerMaxFailures),
			errors.WithResetTimeout(cfg.BreakerResetTimeout)),
	}
}

// Breaker exposes the underlying circuit breaker so internal/health can
// subscribe to its state transitions.
func (c *Client) Breaker() *errors.CircuitBreaker {
	return c.breaker
}

// Embed generates a single embedding. Empty input is rejected outright;
// everything else goes through the circuit breaker.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New(errors.TagInvalidArgument, "embedding input must not be empty")
	}

	vectors, err := c.embedBatchThroughBreaker(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New(errors.TagInvalidArgument, "embedding batch must not be empty")
	}
	for _, t := range texts {
		if t == "" {
			return nil, errors.New(errors.TagInvalidArgument, "embedding input must not be empty")
		}
	}
	return c.embedBatchThroughBreaker(ctx, texts)
}

func (c *Client) embedBatchThroughBreaker(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := errors.CircuitExecuteWithResult(c.breaker,
		func() ([][]float32, error) { return c.embedWithRetry(ctx, texts) },
		func() ([][]float32, error) { return nil, c.unavailableError() },
	)
	if err != nil {
		if errors.GetTag(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(errors.TagEmbeddingUnavailable, c.unreachableHint(err.Error()), err)
	}
	return result, nil
}

func (c *Client) unavailableError() *errors.DocError {
	state := c.breaker.State()
	return errors.New(errors.TagEmbeddingUnavailable,
		fmt.Sprintf("embedding circuit is %s, retry after %ds", state, c.breaker.RetryAfterSeconds())).
		WithDetail("state", state.String()).
		WithDetail("retry_after_seconds", c.breaker.RetryAfterSeconds())
}

// unreachableHint appends the platform hint spec.md §4.1 calls for: on a
// macOS/ARM64 host the generator is assumed to run natively.
func (c *Client) unreachableHint(msg string) string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return msg + " (expected a natively running generator service on this host)"
	}
	return msg
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := RetryWithBackoff(ctx, RetryConfig{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}, isTransient, func() error {
		vectors, err := c.doEmbed(ctx, texts)
		if err != nil {
			return err
		}
		result = vectors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// statusError carries an HTTP status code so isTransient can classify it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("generator returned status %d: %s", e.code, e.body)
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: input})
	if err != nil {
		return nil, errors.Wrap(errors.TagInternal, "failed to marshal embedding request", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.cfg.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.TagInternal, "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(errors.TagInternal, "failed to decode embedding response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errors.New(errors.TagInternal, "generator returned a different number of embeddings than requested")
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, raw := range result.Embeddings {
		if len(raw) != Dimensions {
			return nil, errors.New(errors.TagInternal,
				fmt.Sprintf("generator returned a %d-dimensional vector, expected %d", len(raw), Dimensions))
		}
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vectors[i] = normalizeVector(vec)
	}
	return vectors, nil
}

// isTransient classifies an embedding-call error as retryable: network
// errors, timeouts, and 5xx/429 responses are transient; any other 4xx
// response is a permanent failure and is not retried.
func isTransient(err error) bool {
	var se *statusError
	if e, ok := err.(*statusError); ok {
		se = e
	}
	if se != nil {
		if se.code == http.StatusTooManyRequests || se.code >= 500 {
			return true
		}
		return false
	}
	if _, ok := err.(*errors.DocError); ok {
		// Marshal/decode/dimension-mismatch failures are generator
		// misconfigurations, not transient service hiccups.
		return false
	}
	// Anything else (connection refused, DNS failure, timeout) reaching
	// this point came from the transport layer, not the generator's API
	// contract, so treat it as transient.
	return true
}

// Dimensions returns the fixed embedding width.
func (c *Client) Dimensions() int { return Dimensions }

// ModelName returns the generator's configured model identifier.
func (c *Client) ModelName() string { return c.cfg.Model }

// Available reports whether the generator responds to a lightweight
// probe embed call.
func (c *Client) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	_, err := c.doEmbed(ctx, []string{"availability probe"})
	return err == nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}
