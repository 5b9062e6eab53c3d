package daoware

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned by New when Options.Store is nil.
	ErrStoreRequired = errors.New("daoware: record store is required")
	// ErrCacheRequired is returned by New when Options.Cache is nil.
	ErrCacheRequired = errors.New("daoware: table cache is required")

	// ErrProviderRequired and ErrCodecRequired are returned by
	// NewTableCache when the respective option is nil.
	ErrProviderRequired = errors.New("daoware: provider is required")
	ErrCodecRequired    = errors.New("daoware: codec is required")
)

// InvalidateError reports an invalidation where both the generation bump and
// the entry deletes failed, meaning stale entries may still be served.
// When either side succeeds, readers cannot observe stale data and
// Invalidate reports no error.
type InvalidateError struct {
	Table   string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	return fmt.Sprintf("invalidate table %q failed: gen bump and delete failed: bump=%v; delete=%v",
		e.Table, e.BumpErr, e.DelErr)
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
