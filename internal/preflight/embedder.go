package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/embed"
)

// reachabilityTimeout bounds the doctor's embedding-service probe; it must
// stay well under the Embedding Client's own DefaultTimeout since this is
// a liveness check, not a real embed call.
const reachabilityTimeout = 3 * time.Second

// CheckEmbedderReachable probes the configured embedding generator
// endpoint with a single short-lived embed call. Spec.md's Embedding
// Client degrades gracefully when the generator is down (deferred queue,
// circuit breaker), so this check is a warning, never a hard failure.
func (c *Checker) CheckEmbedderReachable(ctx context.Context, endpoint string) CheckResult {
	result := CheckResult{
		Name:     "embedder_reachable",
		Required: false,
	}

	if endpoint == "" {
		endpoint = embed.DefaultEndpoint
	}

	probeCtx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	defer cancel()

	client := embed.NewClient(embed.Config{Endpoint: endpoint, Timeout: reachabilityTimeout, MaxRetries: 1})
	if _, err := client.Embed(probeCtx, "preflight check"); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("embedding generator at %s is unreachable (%v)", endpoint, err)
		result.Details = "Indexing will queue documents until the generator recovers; activate_project still succeeds."
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("embedding generator at %s is reachable", endpoint)
	return result
}
