package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// memClient serves the commands the provider issues from a map. Any other
// command hits the nil embedded interface and panics.
type memClient struct {
	goredis.UniversalClient

	mu      sync.Mutex
	m       map[string]string
	ttls    map[string]time.Duration
	matches []string
	closed  bool
	down    error
}

func newMemClient() *memClient {
	return &memClient{m: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memClient) Get(_ context.Context, key string) *goredis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return goredis.NewStringResult("", c.down)
	}
	v, ok := c.m[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (c *memClient) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return goredis.NewStatusResult("", c.down)
	}
	switch v := value.(type) {
	case []byte:
		c.m[key] = string(v)
	case string:
		c.m[key] = v
	default:
		return goredis.NewStatusResult("", errors.New("unsupported value type"))
	}
	c.ttls[key] = ttl
	return goredis.NewStatusResult("OK", nil)
}

func (c *memClient) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.m[k]; ok {
			delete(c.m, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

// Scan answers with a single page holding every key under the literal prefix of match.
func (c *memClient) Scan(_ context.Context, _ uint64, match string, _ int64) *goredis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches = append(c.matches, match)
	if c.down != nil {
		return goredis.NewScanCmdResult(nil, 0, c.down)
	}
	prefix := unescapeGlob(strings.TrimSuffix(match, "*"))
	var page []string
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			page = append(page, k)
		}
	}
	return goredis.NewScanCmdResult(page, 0, nil)
}

func (c *memClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return goredis.ErrClosed
	}
	c.closed = true
	return nil
}

func unescapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func newTestProvider(t *testing.T, c *memClient, owned bool) *Redis {
	t.Helper()
	p, err := New(Config{Client: c, CloseClient: owned})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestGlobEscape(t *testing.T) {
	cases := map[string]string{
		"imgcache:":       "imgcache:",
		"imgcache:a*b":    `imgcache:a\*b`,
		"q?[x]":           `q\?\[x\]`,
		`back\slash`:      `back\\slash`,
		"resolve:banner:": "resolve:banner:",
	}
	for in, want := range cases {
		if got := globEscape(in); got != want {
			t.Fatalf("globEscape(%q) = %q want %q", in, got, want)
		}
	}
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	c := newMemClient()
	p := newTestProvider(t, c, false)

	if _, ok, err := p.Get(ctx, "imgcache:a"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v want miss", ok, err)
	}
	ok, err := p.Set(ctx, "imgcache:a", []byte{0, 1, 2}, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if c.ttls["imgcache:a"] != time.Minute {
		t.Fatalf("ttl=%v want native expiry of 1m", c.ttls["imgcache:a"])
	}
	b, ok, err := p.Get(ctx, "imgcache:a")
	if err != nil || !ok || string(b) != "\x00\x01\x02" {
		t.Fatalf("Get: %x ok=%v err=%v", b, ok, err)
	}

	if _, err := p.Set(ctx, "imgcache:b", []byte("x"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if c.ttls["imgcache:b"] != 0 {
		t.Fatalf("negative ttl should mean no expiry, got %v", c.ttls["imgcache:b"])
	}

	if err := p.Del(ctx, "imgcache:a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "imgcache:a"); err != nil {
		t.Fatalf("Del of a missing key: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "imgcache:a"); ok {
		t.Fatalf("deleted key still readable")
	}
}

func TestServerErrorsAreNotMisses(t *testing.T) {
	ctx := context.Background()
	c := newMemClient()
	c.down = errors.New("connection refused")
	p := newTestProvider(t, c, false)

	if _, _, err := p.Get(ctx, "k"); err == nil {
		t.Fatalf("Get should surface the transport error")
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 0); err == nil || ok {
		t.Fatalf("Set: ok=%v err=%v want failure", ok, err)
	}
	if _, err := p.Keys(ctx, ""); err == nil {
		t.Fatalf("Keys should surface the scan error")
	}
}

func TestKeysMatchesPrefixLiterally(t *testing.T) {
	ctx := context.Background()
	c := newMemClient()
	p := newTestProvider(t, c, false)

	for _, k := range []string{"imgcache:resolve:a*b:1", "imgcache:resolve:a*b:2", "imgcache:resolve:axb:1", "other:1"} {
		if _, err := p.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	keys, err := p.Keys(ctx, "imgcache:resolve:a*b:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "imgcache:resolve:a*b:1" || keys[1] != "imgcache:resolve:a*b:2" {
		t.Fatalf("keys=%v", keys)
	}
	if got := c.matches[len(c.matches)-1]; got != `imgcache:resolve:a\*b:*` {
		t.Fatalf("match pattern %q", got)
	}

	none, err := p.Keys(ctx, "absent:")
	if err != nil || len(none) != 0 {
		t.Fatalf("Keys on empty prefix range: %v %v", none, err)
	}
}

func TestCloseOnlyWhenOwned(t *testing.T) {
	ctx := context.Background()

	shared := newMemClient()
	if err := newTestProvider(t, shared, false).Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if shared.closed {
		t.Fatalf("a shared client must stay open")
	}

	owned := newMemClient()
	p := newTestProvider(t, owned, true)
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !owned.closed {
		t.Fatalf("an owned client must be closed")
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close should swallow ErrClosed: %v", err)
	}
}
