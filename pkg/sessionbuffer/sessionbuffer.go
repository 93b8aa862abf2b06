// Package sessionbuffer provides a keyed, ordered-append store used by the
// live session endpoint to reconstruct a raw transcript from chunks appended
// over the lifetime of a session. Implementations must preserve insertion
// order and support a bounded TTL.
package sessionbuffer

import (
	"context"
	"fmt"
	"time"
)

// MaxTTL is the absolute ceiling on a session buffer's time-to-live.
const MaxTTL = 24 * time.Hour

// DefaultTTL is applied on first write and refreshed on every append.
const DefaultTTL = 1 * time.Hour

// Key returns the store key for a live session's transcript buffer.
func Key(sessionID string) string {
	return fmt.Sprintf("session:%s:transcript", sessionID)
}

// Store is a keyed ordered-append log with TTL. All methods must be safe for
// concurrent use and must not panic on backend errors.
type Store interface {
	// Append adds chunk to the ordered list at key, creating the key with
	// DefaultTTL if absent, and refreshing the TTL otherwise (capped at
	// MaxTTL from first write).
	Append(ctx context.Context, key string, chunk string) error

	// Range returns all chunks at key in insertion order. Returns an empty
	// slice, not an error, if key does not exist.
	Range(ctx context.Context, key string) ([]string, error)

	// Delete removes key. It is not an error to delete a key that does not
	// exist.
	Delete(ctx context.Context, key string) error
}
