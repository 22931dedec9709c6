// Package ristretto adapts dgraph-io/ristretto as a bounded, process-local durable tier.
//
// Ristretto cannot enumerate its keys, so the provider keeps a key index next to the cache.
// Keys admitted by the index but evicted by Ristretto are pruned lazily by Get and Keys.
package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/imgcache/provider"
)

type Provider struct {
	c *rc.Cache

	mu    sync.Mutex
	index map[string]struct{}
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // cost of an entry is its byte length
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, index: make(map[string]struct{})}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		p.forget(key)
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.forget(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set returns ok=false when Ristretto's admission policy dropped the write.
// Wait makes the write visible to the next Get.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return false, nil
	}
	p.c.Wait()
	p.mu.Lock()
	p.index[key] = struct{}{}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.forget(key)
	return nil
}

func (p *Provider) Keys(_ context.Context, prefix string) ([]string, error) {
	p.mu.Lock()
	candidates := make([]string, 0, len(p.index))
	for k := range p.index {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, k)
		}
	}
	p.mu.Unlock()

	out := candidates[:0]
	for _, k := range candidates {
		if _, ok := p.c.Get(k); ok {
			out = append(out, k)
		} else {
			p.forget(k)
		}
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes Ristretto's counters (nil unless Config.Metrics).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

func (p *Provider) forget(key string) {
	p.mu.Lock()
	delete(p.index, key)
	p.mu.Unlock()
}
