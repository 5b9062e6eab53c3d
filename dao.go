package daoware

import (
	"context"
	"fmt"
	"sync"
)

// opQueryAll identifies the one query shape the DAO caches. Invalidation is
// table-wide on purpose: any write can affect any cached query for the
// table, so precision is traded for correctness simplicity.
const opQueryAll = "queryAll"

type dao[T any, ID comparable] struct {
	store      RecordStore[T, ID]
	cache      *TableCache[T]
	table      string
	cacheReads bool
	log        Logger
	hooks      Hooks

	exec    *Executor
	ownExec bool

	subMu sync.Mutex
	subs  *subscriptionGroup
}

func (d *dao[T, ID]) TableName() string { return d.table }

func (d *dao[T, ID]) Insert(ctx context.Context, record T) error {
	if err := d.store.Insert(ctx, record); err != nil {
		return err
	}
	return d.invalidate(ctx)
}

// InsertBatch invalidates once for the whole batch, not per record.
func (d *dao[T, ID]) InsertBatch(ctx context.Context, records []T) error {
	if err := d.store.InsertBatch(ctx, records); err != nil {
		return err
	}
	return d.invalidate(ctx)
}

func (d *dao[T, ID]) ClearTable(ctx context.Context) error {
	if err := d.store.ClearTable(ctx); err != nil {
		return err
	}
	return d.invalidate(ctx)
}

func (d *dao[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	if err := d.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	return d.invalidate(ctx)
}

// QueryAll reads through the cache when enabled: a decodable cached result
// is returned as-is; on a miss the store is read, the raw result cached
// under the table's current generation, and returned.
func (d *dao[T, ID]) QueryAll(ctx context.Context) ([]T, error) {
	if !d.cacheReads {
		return d.store.QueryAll(ctx)
	}
	if recs, ok := d.cache.Get(ctx, d.table, opQueryAll); ok {
		d.log.Debug("query served from cache", Fields{"table": d.table})
		return recs, nil
	}
	obs := d.cache.Snapshot(ctx, d.table)
	recs, err := d.store.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Put(ctx, d.table, opQueryAll, recs, obs); err != nil {
		// degraded to an uncached read; the store result is still returned
		d.log.Warn("cache population failed", Fields{"table": d.table, "err": err})
	}
	return recs, nil
}

func (d *dao[T, ID]) Close(ctx context.Context) error {
	if d.ownExec {
		d.exec.Close()
	}
	return nil
}

// invalidate runs strictly after a successful mutation; a failed write must
// never clear the cache.
func (d *dao[T, ID]) invalidate(ctx context.Context) error {
	if err := d.cache.Invalidate(ctx, d.table); err != nil {
		// the write itself committed; surface the coherence loss
		return fmt.Errorf("daoware: write committed but cache invalidation failed: %w", err)
	}
	return nil
}
