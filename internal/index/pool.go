package index

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// DefaultConcurrency bounds how many documents are indexed in parallel.
const DefaultConcurrency = 4

// Job is one unit of reconciliation work: index or delete a path.
type Job struct {
	TenantKey    tenant.Key
	RelativePath string
	Delete       bool
}

// RunBatch indexes (or deletes) every job in jobs, up to concurrency jobs
// at once. Embeddings within a single document are still generated
// sequentially (IndexPath embeds the document body then each chunk in
// turn); concurrency is across documents. Returns one Result per job in
// input order, and the first error encountered, if any; remaining jobs
// still run to completion so a single doc's failure doesn't strand its
// siblings half-indexed.
func (ix *Indexer) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	var firstErr error
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			var res Result
			var err error
			if job.Delete {
				res, err = ix.DeletePath(gctx, job.TenantKey, job.RelativePath)
			} else {
				res, err = ix.IndexPath(gctx, job.TenantKey, job.RelativePath)
			}
			results[i] = res
			if err != nil {
				ix.logger.Error("indexing job failed",
					"path", job.RelativePath, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, firstErr
}
