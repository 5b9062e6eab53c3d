package otter

import (
	"context"
	"time"

	oc "github.com/maypok86/otter/v2"
)

// Provider adapts an otter in-memory cache. Otter expires entries through an
// expiry calculator fixed at construction, so the per-call TTL from Set is
// ignored in favor of Config.TTL (same model as the bigcache provider).
type Provider struct {
	c *oc.Cache[string, []byte]
}

type Config struct {
	MaxEntries int           // capacity; 0 => 10_000
	TTL        time.Duration // per-entry lifetime since last write; 0 => 10m
}

func New(cfg Config) *Provider {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Provider{c: oc.Must(&oc.Options[string, []byte]{
		MaximumSize: maxEntries,
		// an expiry calculator must always be present so Del can expire
		// entries via SetExpiresAfter
		ExpiryCalculator: oc.ExpiryWriting[string, []byte](ttl),
	})}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := p.c.GetIfPresent(key)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.c.Set(key, value)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	// expire immediately; otter has no direct single-key delete on this surface
	p.c.SetExpiresAfter(key, 1)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return nil // otter runs no background goroutines that need stopping here
}
