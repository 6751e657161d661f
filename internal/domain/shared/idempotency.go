package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers delivery IDs (webhook ids) that were already applied
type IdempotencyStore interface {
	// MarkProcessed marks a delivery as processed with a TTL.
	// Returns true if the delivery was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a delivery has already been processed
	IsProcessed(ctx context.Context, deliveryID string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// DefaultIdempotencyTTL is how long processed delivery IDs are remembered
const DefaultIdempotencyTTL = 24 * time.Hour
