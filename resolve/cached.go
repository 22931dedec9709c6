package resolve

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/internal/util"
)

// DefaultGuessTTL bounds how long a last-resort guess is remembered.
const DefaultGuessTTL = time.Minute

// CachedOptions configures Cached.
type CachedOptions struct {
	// Group namespaces keys ("resolve:<group>:<id>") so a whole group can be forgotten at once.
	Group string
	// TTL of resolved entries; 0 keeps them until invalidated.
	TTL time.Duration
	// Version tags entries, normally the build marker passed to imgcache.Bootstrap.
	// Entries written under another version read as misses.
	Version string
	// GuessTTL applies to last-resort results, which are kept in the fast tier only.
	// 0 => DefaultGuessTTL, negative => guesses are not cached.
	GuessTTL time.Duration

	Logger imgcache.Logger
}

// Cached resolves through a Store. Concurrent lookups of one key share a single resolution.
//
// Direct results that a probe confirmed are persisted. Materialized results and
// last-resort guesses stay in the fast tier: blob URLs die with the process.
//
// Cached owns the blobs of the Materialized results it caches. A blob is disposed
// when its key is resolved again, forgotten or cleared with its group.
type Cached struct {
	r     *Resolver
	store imgcache.Store[Resource]
	opts  CachedOptions
	log   imgcache.Logger
	sf    singleflight.Group

	mu    sync.Mutex
	blobs map[string]string // key -> blob URL
}

func NewCached(r *Resolver, s imgcache.Store[Resource], opts CachedOptions) *Cached {
	if opts.GuessTTL == 0 {
		opts.GuessTTL = DefaultGuessTTL
	}
	log := opts.Logger
	if log == nil {
		log = imgcache.NopLogger{}
	}
	return &Cached{r: r, store: s, opts: opts, log: log, blobs: make(map[string]string)}
}

// Resolve returns the cached Resource for it or resolves and caches it.
// A resolution cut short by ctx is returned but not cached; a blob it carries
// belongs to the caller.
func (c *Cached) Resolve(ctx context.Context, it Item) Resource {
	key := util.ResourceKey(c.opts.Group, it.ID)
	if res, ok := c.store.GetVersion(ctx, key, c.opts.Version); ok {
		return clone(res)
	}

	v, _, shared := c.sf.Do(key, func() (any, error) {
		res := c.r.Resolve(ctx, it)
		if ctx.Err() != nil {
			return res, nil
		}
		c.remember(ctx, key, res)
		return res, nil
	})
	if shared {
		c.log.Debug("resolve shared", imgcache.Fields{"key": key})
	}
	return clone(v.(Resource))
}

// ResolveAll is Resolve applied to items in order.
func (c *Cached) ResolveAll(ctx context.Context, items []Item) []Resource {
	out := make([]Resource, 0, len(items))
	for _, it := range items {
		out = append(out, c.Resolve(ctx, it))
	}
	return out
}

// Forget drops the cached entry of id and disposes its blob.
func (c *Cached) Forget(ctx context.Context, id string) {
	key := util.ResourceKey(c.opts.Group, id)
	c.store.Delete(ctx, key)
	c.track(key, "")
}

// ForgetGroup drops every cached entry of the configured group and disposes their blobs.
func (c *Cached) ForgetGroup(ctx context.Context) {
	prefix := util.GroupPrefix(c.opts.Group)
	c.store.ClearByPrefix(ctx, prefix)

	c.mu.Lock()
	var stale []string
	for key, url := range c.blobs {
		if strings.HasPrefix(key, prefix) {
			stale = append(stale, url)
			delete(c.blobs, key)
		}
	}
	c.mu.Unlock()
	for _, url := range stale {
		c.r.Blobs().Dispose(url)
	}
}

func (c *Cached) remember(ctx context.Context, key string, res Resource) {
	url := ""
	if res.Kind == Materialized && res.Blob != nil {
		url = res.Blob.URL
	}
	defer c.track(key, url)

	switch {
	case res.Guess():
		if c.opts.GuessTTL < 0 {
			return
		}
		c.store.Set(ctx, key, res, imgcache.SetOptions{TTL: c.opts.GuessTTL, Version: c.opts.Version})
	case res.Kind == Materialized:
		c.store.Set(ctx, key, res, imgcache.SetOptions{TTL: c.opts.TTL, Version: c.opts.Version})
	default:
		c.store.Set(ctx, key, res, imgcache.SetOptions{TTL: c.opts.TTL, Version: c.opts.Version, Persist: true})
	}
}

// track records url as the blob owned by key and disposes the one it replaces.
func (c *Cached) track(key, url string) {
	c.mu.Lock()
	old := c.blobs[key]
	if url == "" {
		delete(c.blobs, key)
	} else {
		c.blobs[key] = url
	}
	c.mu.Unlock()

	if old != "" && old != url {
		c.r.Blobs().Dispose(old)
		c.log.Debug("blob disposed", imgcache.Fields{"key": key, "url": old})
	}
}

func clone(res Resource) Resource {
	res.Attempted = slices.Clone(res.Attempted)
	return res
}
