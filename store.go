package daoware

import "context"

// RecordStore is the synchronous CRUD primitive being decorated. It is an
// external collaborator: implementations own persistence and their own
// access concurrency; the DAO only layers caching and async execution on
// top.
//
// A nil error means the operation succeeded. Mutations that report an error
// must not have their effects assumed; the DAO performs no cache mutation
// for a failed call.
type RecordStore[T any, ID comparable] interface {
	Insert(ctx context.Context, record T) error
	InsertBatch(ctx context.Context, records []T) error
	ClearTable(ctx context.Context) error
	DeleteByID(ctx context.Context, id ID) error
	QueryAll(ctx context.Context) ([]T, error)
}
