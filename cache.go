package daoware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elvench/daoware/codec"
	"github.com/elvench/daoware/genstore"
	"github.com/elvench/daoware/internal/wire"
	"github.com/elvench/daoware/provider"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// SetCostFunc lets cost-aware providers (ristretto) weigh entries.
type SetCostFunc func(key string, frame []byte) int64

// CacheOptions configure a TableCache.
// Only Provider and Codec are required; others have sensible defaults.
type CacheOptions[T any] struct {
	// Required
	Provider provider.Provider
	Codec    codec.Codec[[]T] // serializes whole query results

	Gens   genstore.GenStore // nil => LocalGenStore (in-process)
	Logger Logger            // nil => NopLogger
	Hooks  Hooks             // nil => NopHooks
	TTL    time.Duration     // 0 => 10m
	Cost   SetCostFunc       // nil => constant 1
}

// TableCache stores serialized query results under (table, operation) keys
// and invalidates them table-wide. It is the process-wide shared cache
// surface: construct one per record type and hand it to every DAO touching
// that table; there is no hidden singleton.
//
// Each entry is framed together with the table generation it was recorded
// under. Invalidate bumps the generation, so readers reject entries from
// before the last successful write and delete them (self-heal). An entry
// can never outlive a write to its table, regardless of which process or
// provider node performed the write.
type TableCache[T any] struct {
	provider provider.Provider
	codec    codec.Codec[[]T]
	gens     genstore.GenStore
	log      Logger
	hooks    Hooks
	ttl      time.Duration
	cost     SetCostFunc

	mu   sync.Mutex
	keys map[string]map[string]struct{} // table -> ops with live entries
}

func NewTableCache[T any](opts CacheOptions[T]) (*TableCache[T], error) {
	if opts.Provider == nil {
		return nil, ErrProviderRequired
	}
	if opts.Codec == nil {
		return nil, ErrCodecRequired
	}

	c := &TableCache[T]{
		provider: opts.Provider,
		codec:    opts.Codec,
		keys:     make(map[string]map[string]struct{}),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.ttl = coalesce[time.Duration](opts.TTL, defaultCacheTTL)

	if opts.Cost != nil {
		c.cost = opts.Cost
	} else {
		c.cost = func(_ string, _ []byte) int64 { return 1 }
	}

	if opts.Gens != nil {
		c.gens = opts.Gens
	} else {
		// default to in-process generations with periodic cleanup
		c.gens = genstore.NewLocalGenStore(defaultSweep, defaultGenRetention)
	}

	return c, nil
}

// Get is a pure lookup: it returns the cached result for (table, op) or
// reports a miss. Corrupt, stale or undecodable entries are deleted and
// reported as a miss; a decode/IO failure never surfaces to the caller as
// an error or a fabricated result.
func (c *TableCache[T]) Get(ctx context.Context, table, op string) ([]T, bool) {
	k := entryKey(table, op)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil {
		c.log.Warn("cache read error", Fields{"key": k, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	gen, payload, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, k, "corrupt")
		return nil, false
	}
	if gen != c.Snapshot(ctx, table) {
		c.heal(ctx, k, "stale")
		return nil, false
	}
	recs, err := c.codec.Decode(payload)
	if err != nil {
		c.heal(ctx, k, "decode")
		return nil, false
	}
	if recs == nil {
		// a null list is not a cacheable answer
		c.heal(ctx, k, "nil")
		return nil, false
	}
	return recs, true
}

// Snapshot returns the table's current generation. Take it before reading
// the record store, then pass it to Put: the write is skipped if the table
// was invalidated in between.
func (c *TableCache[T]) Snapshot(ctx context.Context, table string) uint64 {
	g, err := c.gens.Snapshot(ctx, table)
	if err != nil {
		// conservative: writes observed against 0 are skipped once a bump
		// happened; readers self-heal
		c.log.Warn("gen snapshot error", Fields{"table": table, "err": err})
		return 0
	}
	return g
}

// Put serializes records and stores them under (table, op), last-write-wins.
// An encode failure is returned to the caller and leaves the cache
// untouched; there is no partial entry.
func (c *TableCache[T]) Put(ctx context.Context, table, op string, records []T, observedGen uint64) error {
	if c.Snapshot(ctx, table) != observedGen {
		// table written since the records were read; skip stale write
		c.log.Debug("cache put skipped (gen moved)", Fields{"table": table, "op": op})
		return nil
	}
	payload, err := c.codec.Encode(records)
	if err != nil {
		return fmt.Errorf("daoware: encode cache entry: %w", err)
	}
	k := entryKey(table, op)
	frame := wire.Encode(observedGen, payload)
	ok, err := c.provider.Set(ctx, k, frame, c.cost(k, frame), c.ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.CacheRejected(table, op)
		c.log.Debug("cache put rejected by provider (pressure)", Fields{"table": table, "op": op})
		return nil
	}
	c.register(table, op)
	return nil
}

// Invalidate removes every entry for the table: the generation is bumped
// (killing all entries logically, across processes when the gen store is
// shared) and locally registered keys are deleted best-effort. An error is
// reported only when both sides fail, since either alone keeps stale reads
// impossible.
func (c *TableCache[T]) Invalidate(ctx context.Context, table string) error {
	newGen, bumpErr := c.gens.Bump(ctx, table)

	var delErr error
	for _, op := range c.take(table) {
		if err := c.provider.Del(ctx, entryKey(table, op)); err != nil {
			delErr = err
		}
	}

	if bumpErr != nil && delErr != nil {
		c.hooks.InvalidateOutage(table, bumpErr, delErr)
		return &InvalidateError{Table: table, BumpErr: bumpErr, DelErr: delErr}
	}
	if bumpErr != nil || delErr != nil {
		c.log.Warn("partial invalidation", Fields{"table": table, "bumpErr": bumpErr, "delErr": delErr})
		return nil
	}
	c.log.Debug("invalidated table", Fields{"table": table, "gen": newGen})
	return nil
}

// Close releases the generation store first (best effort), then the provider.
func (c *TableCache[T]) Close(ctx context.Context) error {
	if c.gens != nil {
		_ = c.gens.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *TableCache[T]) heal(ctx context.Context, key, reason string) {
	_ = c.provider.Del(ctx, key)
	c.hooks.SelfHeal(key, reason)
	c.log.Debug("self-healed cache entry", Fields{"key": key, "reason": reason})
}

func (c *TableCache[T]) register(table, op string) {
	c.mu.Lock()
	ops := c.keys[table]
	if ops == nil {
		ops = make(map[string]struct{})
		c.keys[table] = ops
	}
	ops[op] = struct{}{}
	c.mu.Unlock()
}

// take drains the registered ops for a table so Invalidate can delete their
// entries exactly once.
func (c *TableCache[T]) take(table string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := c.keys[table]
	if len(ops) == 0 {
		return nil
	}
	delete(c.keys, table)
	out := make([]string, 0, len(ops))
	for op := range ops {
		out = append(out, op)
	}
	return out
}

func entryKey(table, op string) string {
	return "q:" + table + ":" + op
}
