package daoware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elvench/daoware/codec"
	"github.com/elvench/daoware/genstore"
	"github.com/elvench/daoware/internal/wire"
	pr "github.com/elvench/daoware/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider must lock: executor workers invalidate through a shared cache
// concurrently in the async tests.
type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// rejectProvider refuses every Set, as a store under pressure would.
type rejectProvider struct{ *memProvider }

func (p *rejectProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, nil
}

// delErrProvider fails every Del.
type delErrProvider struct {
	*memProvider
	err error
}

func (p *delErrProvider) Del(context.Context, string) error { return p.err }

// failingGenStore errors on demand.
type failingGenStore struct {
	snapErr error
	bumpErr error
}

var _ genstore.GenStore = (*failingGenStore)(nil)

func (s *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, s.snapErr }
func (s *failingGenStore) Bump(context.Context, string) (uint64, error)     { return 0, s.bumpErr }
func (s *failingGenStore) Cleanup(time.Duration)                            {}
func (s *failingGenStore) Close(context.Context) error                      { return nil }

// countingGenStore counts Bump calls (one bump == one invalidation).
type countingGenStore struct {
	genstore.GenStore
	mu    sync.Mutex
	bumps int
}

func (s *countingGenStore) Bump(ctx context.Context, table string) (uint64, error) {
	s.mu.Lock()
	s.bumps++
	s.mu.Unlock()
	return s.GenStore.Bump(ctx, table)
}

func (s *countingGenStore) bumpCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bumps
}

// recordingHooks captures hook events for assertions. Hooks fire on worker
// goroutines, so every access locks.
type recordingHooks struct {
	NopHooks
	mu        sync.Mutex
	selfHeals []string // reasons
	rejected  int
	faults    []error
	dropped   int
	outages   int
}

func (h *recordingHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, reason)
	h.mu.Unlock()
}

func (h *recordingHooks) CacheRejected(string, string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func (h *recordingHooks) AsyncFault(_, _ string, err error) {
	h.mu.Lock()
	h.faults = append(h.faults, err)
	h.mu.Unlock()
}

func (h *recordingHooks) AsyncDropped(string, string) {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

func (h *recordingHooks) InvalidateOutage(string, error, error) {
	h.mu.Lock()
	h.outages++
	h.mu.Unlock()
}

func (h *recordingHooks) healReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.selfHeals...)
}

func (h *recordingHooks) rejectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejected
}

func (h *recordingHooks) faultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.faults)
}

func (h *recordingHooks) droppedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *recordingHooks) outageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outages
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T, p pr.Provider, optsOpt func(*CacheOptions[user])) *TableCache[user] {
	t.Helper()
	opts := CacheOptions[user]{
		Provider: p,
		Codec:    codec.JSON[[]user]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := NewTableCache[user](opts)
	if err != nil {
		t.Fatalf("NewTableCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestCachePutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	c := newTestCache(t, mp, nil)

	recs := []user{{ID: "1", Name: "Ada"}, {ID: "2", Name: "Linus"}}

	// miss initially
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("expected miss on empty cache")
	}

	obs := c.Snapshot(ctx, "users")
	if err := c.Put(ctx, "users", opQueryAll, recs, obs); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get(ctx, "users", opQueryAll)
	if !ok || len(got) != 2 || got[0] != recs[0] || got[1] != recs[1] {
		t.Fatalf("Get after Put: ok=%v got=%v", ok, got)
	}

	if err := c.Invalidate(ctx, "users"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("expected miss after Invalidate")
	}
	// registered entry was physically deleted, not just logically dead
	if mp.has(entryKey("users", opQueryAll)) {
		t.Fatalf("entry should have been deleted on Invalidate")
	}
}

func TestCacheTableIsolation(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemProvider(), nil)

	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "u"}}, c.Snapshot(ctx, "users")); err != nil {
		t.Fatalf("Put users: %v", err)
	}
	if err := c.Put(ctx, "orders", opQueryAll, []user{{ID: "o"}}, c.Snapshot(ctx, "orders")); err != nil {
		t.Fatalf("Put orders: %v", err)
	}

	if err := c.Invalidate(ctx, "users"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("users entry should be gone")
	}
	if _, ok := c.Get(ctx, "orders", opQueryAll); !ok {
		t.Fatalf("orders entry must survive a users invalidation")
	}
}

func TestCacheSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &recordingHooks{}
	c := newTestCache(t, mp, func(o *CacheOptions[user]) { o.Hooks = hooks })

	k := entryKey("users", opQueryAll)
	if ok, err := mp.Set(ctx, k, []byte("not-wire-format"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}

	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("corrupt entry must read as a miss")
	}
	if mp.has(k) {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}
	if got := hooks.healReasons(); len(got) != 1 || got[0] != "corrupt" {
		t.Fatalf("expected one corrupt self-heal, got %v", got)
	}
}

func TestCacheSelfHealOnStaleGen(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &recordingHooks{}
	c := newTestCache(t, mp, func(o *CacheOptions[user]) { o.Hooks = hooks })

	// valid frame recorded under gen 3 while the table is at gen 0
	payload, err := codec.JSON[[]user]{}.Encode([]user{{ID: "x"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	k := entryKey("users", opQueryAll)
	if ok, err := mp.Set(ctx, k, wire.Encode(3, payload), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject stale: ok=%v err=%v", ok, err)
	}

	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("stale entry must read as a miss")
	}
	if mp.has(k) {
		t.Fatalf("stale entry was not deleted by self-heal")
	}
	if got := hooks.healReasons(); len(got) != 1 || got[0] != "stale" {
		t.Fatalf("expected one stale self-heal, got %v", got)
	}
}

func TestCacheSelfHealOnUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	c := newTestCache(t, mp, nil)

	k := entryKey("users", opQueryAll)
	if ok, err := mp.Set(ctx, k, wire.Encode(0, []byte("{broken")), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject: ok=%v err=%v", ok, err)
	}

	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("undecodable payload must read as a miss")
	}
	if mp.has(k) {
		t.Fatalf("undecodable entry was not deleted")
	}
}

func TestCacheNullListIsMiss(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	c := newTestCache(t, mp, nil)

	k := entryKey("users", opQueryAll)
	if ok, err := mp.Set(ctx, k, wire.Encode(0, []byte("null")), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject: ok=%v err=%v", ok, err)
	}

	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("a null list is not a hit")
	}
}

func TestCachePutSkippedWhenGenMoved(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	c := newTestCache(t, mp, nil)

	obs := c.Snapshot(ctx, "users")
	if err := c.Invalidate(ctx, "users"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	// records read before the invalidation must not be cached
	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "old"}}, obs); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("stale put must not populate the cache")
	}
	if n := mp.size(); n != 0 {
		t.Fatalf("provider should hold no entries, got %d", n)
	}
}

func TestCacheRejectedByProvider(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	c := newTestCache(t, &rejectProvider{newMemProvider()}, func(o *CacheOptions[user]) { o.Hooks = hooks })

	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err != nil {
		t.Fatalf("a pressure rejection is not an error: %v", err)
	}
	if got := hooks.rejectedCount(); got != 1 {
		t.Fatalf("expected CacheRejected hook, got %d", got)
	}
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("rejected put must not be readable")
	}
}

func TestInvalidateBothFailReturnsError(t *testing.T) {
	ctx := context.Background()
	sentinelDel := errors.New("del failed")
	sentinelBump := errors.New("bump failed")

	hooks := &recordingHooks{}
	mp := newMemProvider()
	c := newTestCache(t, &delErrProvider{memProvider: mp, err: sentinelDel}, func(o *CacheOptions[user]) {
		o.Gens = &failingGenStore{bumpErr: sentinelBump}
		o.Hooks = hooks
	})

	// a registered entry forces the delete path
	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := c.Invalidate(ctx, "users")
	if err == nil {
		t.Fatalf("expected error when both bump and delete fail")
	}
	var ie *InvalidateError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidateError, got %T: %v", err, err)
	}
	if !errors.Is(err, sentinelDel) || !errors.Is(err, sentinelBump) {
		t.Fatalf("Unwrap should expose both causes: %v", err)
	}
	if got := hooks.outageCount(); got != 1 {
		t.Fatalf("expected InvalidateOutage hook, got %d", got)
	}
}

func TestInvalidateSingleFailureTolerated(t *testing.T) {
	ctx := context.Background()

	// bump fails, delete succeeds
	c := newTestCache(t, newMemProvider(), func(o *CacheOptions[user]) {
		o.Gens = &failingGenStore{bumpErr: errors.New("bump failed")}
	})
	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Invalidate(ctx, "users"); err != nil {
		t.Fatalf("bump-only failure should not error: %v", err)
	}

	// bump succeeds, delete fails
	c2 := newTestCache(t, &delErrProvider{memProvider: newMemProvider(), err: errors.New("del failed")}, nil)
	if err := c2.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c2.Invalidate(ctx, "users"); err != nil {
		t.Fatalf("delete-only failure should not error: %v", err)
	}
	// the surviving entry is stale-gen now and reads as a miss
	if _, ok := c2.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("entry recorded before the bump must not be served")
	}
}

func TestCacheOptionValidation(t *testing.T) {
	if _, err := NewTableCache[user](CacheOptions[user]{Codec: codec.JSON[[]user]{}}); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("expected ErrProviderRequired, got %v", err)
	}
	if _, err := NewTableCache[user](CacheOptions[user]{Provider: newMemProvider()}); !errors.Is(err, ErrCodecRequired) {
		t.Fatalf("expected ErrCodecRequired, got %v", err)
	}
}

func TestCacheEncodeFailureLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	c := newTestCache(t, mp, func(o *CacheOptions[user]) {
		o.Codec = failCodec{}
	})

	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err == nil {
		t.Fatalf("encode failure should be reported")
	}
	if mp.size() != 0 {
		t.Fatalf("no partial entry may exist after an encode failure")
	}
}

type failCodec struct{}

func (failCodec) Encode([]user) ([]byte, error) { return nil, errors.New("encode failed") }
func (failCodec) Decode([]byte) ([]user, error) { return nil, errors.New("decode failed") }

func TestCacheMissOnSnapshotError(t *testing.T) {
	// with the gen store down, entries recorded under a non-zero gen must
	// not be served
	ctx := context.Background()
	mp := newMemProvider()
	payload, _ := codec.JSON[[]user]{}.Encode([]user{{ID: "1"}})
	_, _ = mp.Set(ctx, entryKey("users", opQueryAll), wire.Encode(5, payload), 1, time.Minute)

	c := newTestCache(t, mp, func(o *CacheOptions[user]) {
		o.Gens = &failingGenStore{snapErr: errors.New("gen store down")}
	})
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("snapshot errors must degrade to a miss")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemProvider(), func(o *CacheOptions[user]) {
		o.TTL = time.Nanosecond
	})

	if err := c.Put(ctx, "users", opQueryAll, []user{{ID: "1"}}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(ctx, "users", opQueryAll); ok {
		t.Fatalf("expired entry should read as a miss")
	}
}

// The cache is codec-agnostic: the binary codecs carry entries through the
// same put/hit/invalidate cycle as JSON.
func TestCacheWithBinaryCodecs(t *testing.T) {
	ctx := context.Background()
	codecs := map[string]codec.Codec[[]user]{
		"msgpack": codec.Msgpack[[]user]{},
		"cbor":    codec.MustCBOR[[]user](true),
	}
	for name, cd := range codecs {
		t.Run(name, func(t *testing.T) {
			c := newTestCache(t, newMemProvider(), func(o *CacheOptions[user]) { o.Codec = cd })

			recs := []user{{ID: "1", Name: "Ada"}}
			if err := c.Put(ctx, "users", opQueryAll, recs, c.Snapshot(ctx, "users")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, ok := c.Get(ctx, "users", opQueryAll)
			if !ok || len(got) != 1 || got[0] != recs[0] {
				t.Fatalf("Get: ok=%v got=%v", ok, got)
			}
			if err := c.Invalidate(ctx, "users"); err != nil {
				t.Fatalf("Invalidate: %v", err)
			}
			if _, ok := c.Get(ctx, "users", opQueryAll); ok {
				t.Fatalf("entry must be gone after Invalidate")
			}
		})
	}
}

func TestCacheKeyShape(t *testing.T) {
	if got := entryKey("users", opQueryAll); got != "q:users:queryAll" {
		t.Fatalf("entry key changed: %q", got)
	}
	if !strings.HasPrefix(entryKey("users", "x"), "q:users:") {
		t.Fatalf("entries must stay under the table's keyspace")
	}
}
