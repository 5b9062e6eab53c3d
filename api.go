package daoware

import (
	"context"
	"reflect"
)

// DAO is the cache-coherent decorator over a RecordStore. The synchronous
// surface mirrors the store, with every successful mutation invalidating the
// table's cache entries and QueryAll served read-through. The async surface
// runs the same operations on a background pool and delivers results on a
// single serialized delivery goroutine, gated by Subscribe/Unsubscribe.
type DAO[T any, ID comparable] interface {
	Insert(ctx context.Context, record T) error
	InsertBatch(ctx context.Context, records []T) error
	ClearTable(ctx context.Context) error
	DeleteByID(ctx context.Context, id ID) error
	QueryAll(ctx context.Context) ([]T, error)

	// Subscribe arms the async surface with a fresh subscription group.
	// Required before any *Async call; required again after Unsubscribe.
	Subscribe()
	// Unsubscribe cancels every in-flight async operation of this DAO and
	// discards the group; their callbacks will not fire.
	Unsubscribe()

	// Async variants never block the caller. The callback receives the
	// operation's tagged outcome (value and/or error) on the delivery
	// goroutine, unless the subscription was cancelled first.
	// Calling any of them without an active subscription group panics.
	InsertAsync(ctx context.Context, record T, done func(error)) *Subscription
	InsertBatchAsync(ctx context.Context, records []T, done func(error)) *Subscription
	ClearTableAsync(ctx context.Context, done func(error)) *Subscription
	DeleteByIDAsync(ctx context.Context, id ID, done func(error)) *Subscription
	QueryAllAsync(ctx context.Context, done func([]T, error)) *Subscription

	// TableName is the name resolved for T at construction.
	TableName() string

	// Close releases the owned executor (if any), draining pending
	// deliveries. The shared TableCache is closed by whoever built it.
	Close(ctx context.Context) error
}

// Options configure a DAO.
// Only Store and Cache are required; others have sensible defaults.
type Options[T any, ID comparable] struct {
	// Required
	Store RecordStore[T, ID]
	Cache *TableCache[T]

	TableName string                    // "" => resolved from T
	Resolver  func(reflect.Type) string // nil => DefaultTableName

	// DisableCache turns off the read path only: QueryAll always hits the
	// store and never touches the cache. Writes still invalidate, since
	// other DAO instances may be cache-reading the same table.
	DisableCache bool

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// Executor shares one worker pool across DAOs. When nil, an owned
	// executor is built from Workers/QueueSize and released by Close.
	Executor  *Executor
	Workers   int // owned executor only; 0 => 4
	QueueSize int // owned executor only; 0 => 256
}

func New[T any, ID comparable](opts Options[T, ID]) (DAO[T, ID], error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	if opts.Cache == nil {
		return nil, ErrCacheRequired
	}

	d := &dao[T, ID]{
		store:      opts.Store,
		cache:      opts.Cache,
		table:      tableNameOf[T](opts.TableName, opts.Resolver),
		cacheReads: !opts.DisableCache,
	}
	d.log = coalesce[Logger](opts.Logger, NopLogger{})
	d.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.Executor != nil {
		d.exec = opts.Executor
	} else {
		d.exec = NewExecutor(opts.Workers, opts.QueueSize, d.log)
		d.ownExec = true
	}

	return d, nil
}
