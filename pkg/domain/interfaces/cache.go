package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// CacheStore keeps query results. Keys are flattened query keys; prefix
// operations work on whole segments.
type CacheStore interface {
	// Get returns nil without error on a miss
	Get(ctx context.Context, key string) (*model.CacheEntry, error)
	// Put stores the entry and evicts it after ttl
	Put(ctx context.Context, key string, entry *model.CacheEntry, ttl time.Duration) error
	// Invalidate marks every entry whose key starts with prefix as stale and
	// returns how many were marked
	Invalidate(ctx context.Context, prefix string) (int, error)
	// Clear removes every entry
	Clear(ctx context.Context) error
	Close() error
}
