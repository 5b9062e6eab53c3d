package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where table generations live.
// Use LocalGenStore (default) for in-process gens, or RedisGenStore to share
// invalidations across processes hitting the same backing store.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, table string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, table string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
