// Package dedup remembers which inbound message ids have already been
// processed so that webhook redeliveries are handled at most once within a
// retention window.
package dedup

import (
	"context"
	"time"
)

// DefaultTTL matches the platform's redelivery horizon.
const DefaultTTL = 12 * time.Hour

// Store is an atomic check-and-mark set with per-entry expiry.
type Store interface {
	// CheckAndMark reports true when messageID was already marked and not
	// yet expired. Otherwise it marks messageID and reports false. The two
	// steps are one atomic operation. An empty messageID is always reported
	// as a duplicate.
	CheckAndMark(ctx context.Context, messageID string) (bool, error)
	Close() error
}

// Purger is implemented by stores that need expired entries removed
// explicitly. It returns the number of records deleted.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Record is what the bolt and memory stores keep per message id.
type Record struct {
	MessageID string    `json:"message_id"`
	MarkedAt  time.Time `json:"marked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r Record) live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
