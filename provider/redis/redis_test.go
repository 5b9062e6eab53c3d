package redis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newProvider(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: client, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return mr, p
}

func TestNilClientRejected(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	_, p := newProvider(t)

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("miss expected, ok=%v err=%v", ok, err)
	}

	val := []byte{0x00, 0x01, 0xFF} // binary-safe round trip
	if ok, err := p.Set(ctx, "k", val, 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, val) {
		t.Fatalf("Get: ok=%v err=%v got=%v", ok, err, got)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("key should be gone after Del")
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	mr, p := newProvider(t)

	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestNonPositiveTTLMeansNoExpiry(t *testing.T) {
	ctx := context.Background()
	mr, p := newProvider(t)

	if ok, err := p.Set(ctx, "k", []byte("v"), 1, 0); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	mr.FastForward(24 * time.Hour)

	if _, ok, _ := p.Get(ctx, "k"); !ok {
		t.Fatalf("entry without TTL should not expire")
	}
}
