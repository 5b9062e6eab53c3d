package daoware

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the cache and the async
// executor call them on hot paths. Wrap with hooks/asynchook to offload.
type Hooks interface {
	// A cache entry was deleted on read.
	// reason ∈ {"corrupt", "stale", "decode", "nil"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	CacheRejected(table, op string)

	// Background work for an async operation faulted (error or recovered
	// panic). The fault is still delivered to the completion callback.
	AsyncFault(table, op string, err error)

	// An async operation could not be queued (executor closed or
	// saturated); its callback will never fire.
	AsyncDropped(table, op string)

	// Both the generation bump and the entry delete failed during
	// Invalidate (likely backend outage).
	InvalidateOutage(table string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) CacheRejected(string, string)          {}
func (NopHooks) AsyncFault(string, string, error)      {}
func (NopHooks) AsyncDropped(string, string)           {}
func (NopHooks) InvalidateOutage(string, error, error) {}
