package dedup

import "context"

// Driver names accepted by the config.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Deduper records event keys and reports replays inside its window.
type Deduper interface {
	// Seen records key and reports whether it was already recorded
	// within the window. Implementations fail open: when the backing
	// store is unavailable the event is treated as new.
	Seen(ctx context.Context, key string) bool
}
