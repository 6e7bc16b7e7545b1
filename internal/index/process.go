package index

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/queue"
)

// Process satisfies queue.Processor: it re-attempts a deferred change,
// dispatching to IndexPath or DeletePath by the item's kind.
func (ix *Indexer) Process(ctx context.Context, item queue.Item) error {
	switch item.Kind {
	case queue.ChangeDeleted:
		_, err := ix.DeletePath(ctx, item.TenantKey, item.RelativePath)
		return err
	default:
		_, err := ix.IndexPath(ctx, item.TenantKey, item.RelativePath)
		return err
	}
}
