// Package daoware decorates a synchronous record store with a table-scoped
// read cache and an optional asynchronous execution mode.
//
// Components:
//   - RecordStore[T, ID]: the external CRUD primitive being wrapped.
//   - TableCache[T]: process-wide cache of serialized query results,
//     invalidated table-wide after every successful write. Built on a
//     Provider byte store, a Codec and per-table generation counters.
//   - DAO[T, ID]: the decorator. Synchronous calls mirror the store; every
//     mutation invalidates the table's cache entries on success only, and
//     reads are served from cache when enabled. Async variants run on a
//     background worker pool and deliver results through a single delivery
//     goroutine, gated by a Subscribe/Unsubscribe subscription group.
//
// Cache keys:
//
//	q:<table>:<op>    - cached query results, stored in the Provider
//	gen:<ns>:<table>  - generation counter per table, used by the redis
//	                    genstore in its own client; the local genstore keeps
//	                    counters in process memory and never touches the
//	                    Provider
//
// Invalidation bumps the table generation; readers reject entries recorded
// under an older generation and delete them (self-heal), so a cache hit
// always reflects at least the last successful write to its table.
package daoware
