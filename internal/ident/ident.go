// Package ident generates idempotency keys for clock operations.
package ident

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEventID returns a globally unique, time-prefixed operation identifier in
// the form {unix-millis}-{uuid-v4}. The random suffix guarantees uniqueness;
// the millisecond prefix gives the backend a verifiable freshness window for
// its 24-hour replay TTL. Safe for concurrent use; no shared state.
func NewEventID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String())
}
