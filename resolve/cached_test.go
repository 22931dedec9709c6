package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/provider/file"
)

func newResourceStore(t *testing.T, dir string) imgcache.Store[Resource] {
	t.Helper()
	return newResourceStoreAt(t, dir, nil)
}

func newResourceStoreAt(t *testing.T, dir string, now func() time.Time) imgcache.Store[Resource] {
	t.Helper()
	p, err := file.New(dir)
	require.NoError(t, err)
	s, err := imgcache.New[Resource](imgcache.Options[Resource]{Provider: p, Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// viewOK answers only the view candidate.
func viewOK(calls *atomic.Int32) ProbeFunc {
	return func(_ context.Context, url string) error {
		calls.Add(1)
		if url == Candidates(DefaultEndpoints, "a", 0)[0] || url == Candidates(DefaultEndpoints, "b", 0)[0] {
			return nil
		}
		return errLoad
	}
}

func TestCachedPersistsDirectResults(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	var calls atomic.Int32
	r := New(Options{Prober: viewOK(&calls)})

	c := NewCached(r, newResourceStore(t, dir), CachedOptions{Group: "banners", TTL: time.Hour, Version: "b1"})
	first := c.Resolve(ctx, Item{ID: "a"})
	again := c.Resolve(ctx, Item{ID: "a"})
	assert.Equal(t, first.URL, again.URL)
	assert.EqualValues(t, 1, calls.Load())

	// a fresh process over the same durable tier
	restarted := NewCached(r, newResourceStore(t, dir), CachedOptions{Group: "banners", TTL: time.Hour, Version: "b1"})
	res := restarted.Resolve(ctx, Item{ID: "a"})
	assert.EqualValues(t, 1, calls.Load(), "served from the durable tier")
	assert.Equal(t, first.URL, res.URL)
	assert.Equal(t, Direct, res.Kind)
	assert.Equal(t, first.Attempted, res.Attempted)

	// a new build reads old entries as misses
	next := NewCached(r, newResourceStore(t, dir), CachedOptions{Group: "banners", TTL: time.Hour, Version: "b2"})
	next.Resolve(ctx, Item{ID: "a"})
	assert.EqualValues(t, 2, calls.Load())
}

func TestCachedKeepsMaterializedInProcess(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := &fakeMaterializer{}
	r := New(Options{Credential: "key", Prober: failAll(), Materializer: m})

	c := NewCached(r, newResourceStore(t, dir), CachedOptions{})
	res := c.Resolve(ctx, Item{ID: "img"})
	require.Equal(t, Materialized, res.Kind)
	require.NotNil(t, res.Blob)

	hit := c.Resolve(ctx, Item{ID: "img"})
	assert.Same(t, res.Blob, hit.Blob)
	assert.EqualValues(t, 1, m.calls.Load())

	restarted := NewCached(r, newResourceStore(t, dir), CachedOptions{})
	restarted.Resolve(ctx, Item{ID: "img"})
	assert.EqualValues(t, 2, m.calls.Load(), "blob URLs are not persisted")
}

func TestCachedGuesses(t *testing.T) {
	ctx := context.Background()
	p := failAll()
	r := New(Options{Prober: p})

	c := NewCached(r, newResourceStore(t, t.TempDir()), CachedOptions{})
	c.Resolve(ctx, Item{ID: "gone"})
	c.Resolve(ctx, Item{ID: "gone"})
	assert.EqualValues(t, 4, p.calls.Load(), "guess remembered for GuessTTL")

	p2 := failAll()
	nocache := NewCached(New(Options{Prober: p2}), newResourceStore(t, t.TempDir()), CachedOptions{GuessTTL: -1})
	nocache.Resolve(ctx, Item{ID: "gone"})
	nocache.Resolve(ctx, Item{ID: "gone"})
	assert.EqualValues(t, 8, p2.calls.Load())
}

func TestCachedDoesNotCacheCancelled(t *testing.T) {
	var calls atomic.Int32
	c := NewCached(New(Options{Prober: viewOK(&calls)}), newResourceStore(t, t.TempDir()), CachedOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Resolve(ctx, Item{ID: "a"})
	assert.Empty(t, res.Attempted)

	c.Resolve(context.Background(), Item{ID: "a"})
	assert.EqualValues(t, 1, calls.Load())
}

func TestCachedCollapsesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32
	slow := ProbeFunc(func(ctx context.Context, url string) error {
		time.Sleep(100 * time.Millisecond)
		return viewOK(&calls)(ctx, url)
	})
	c := NewCached(New(Options{Prober: slow}), newResourceStore(t, t.TempDir()), CachedOptions{})

	var wg sync.WaitGroup
	out := make([]Resource, 8)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = c.Resolve(context.Background(), Item{ID: "a"})
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, res := range out {
		assert.Equal(t, out[0].URL, res.URL)
	}
	out[0].Attempted[0] = "mutated"
	assert.NotEqual(t, "mutated", out[1].Attempted[0], "callers get their own trail")
}

func TestCachedForget(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	r := New(Options{Prober: viewOK(&calls)})
	store := newResourceStore(t, t.TempDir())
	g1 := NewCached(r, store, CachedOptions{Group: "g1"})
	g2 := NewCached(r, store, CachedOptions{Group: "g2"})

	out := g1.ResolveAll(ctx, []Item{{ID: "a"}, {ID: "b"}})
	require.Len(t, out, 2)
	g2.Resolve(ctx, Item{ID: "a"})
	require.EqualValues(t, 3, calls.Load())

	g1.Forget(ctx, "a")
	g1.Resolve(ctx, Item{ID: "a"})
	g1.Resolve(ctx, Item{ID: "b"})
	assert.EqualValues(t, 4, calls.Load())

	g1.ForgetGroup(ctx)
	g1.ResolveAll(ctx, []Item{{ID: "a"}, {ID: "b"}})
	g2.Resolve(ctx, Item{ID: "a"})
	assert.EqualValues(t, 6, calls.Load(), "other groups survive")
}

func TestCachedDoesNotPersistGuessWhenEndpointsCollide(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ep := Endpoints{View: "http://img.test/{id}", Download: "http://img.test/{id}"}
	p := failAll()
	r := New(Options{Endpoints: ep, Prober: p})

	c := NewCached(r, newResourceStore(t, dir), CachedOptions{Group: "g", TTL: time.Hour})
	res := c.Resolve(ctx, Item{ID: "gone"})
	require.True(t, res.Guess())
	require.Equal(t, res.URL, res.Attempted[len(res.Attempted)-1], "trail ends on the view URL")

	fp, err := file.New(dir)
	require.NoError(t, err)
	keys, err := fp.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "guesses stay out of the durable tier")

	restarted := NewCached(r, newResourceStore(t, dir), CachedOptions{Group: "g", TTL: time.Hour})
	restarted.Resolve(ctx, Item{ID: "gone"})
	assert.EqualValues(t, 8, p.calls.Load(), "a new process resolves the guess again")
}

func TestCachedDisposesReplacedAndForgottenBlobs(t *testing.T) {
	ctx := context.Background()
	var skew atomic.Int64
	now := func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	m := &fakeMaterializer{}
	r := New(Options{Credential: "key", Prober: failAll(), Materializer: m})
	c := NewCached(r, newResourceStoreAt(t, t.TempDir(), now), CachedOptions{TTL: time.Minute})

	first := c.Resolve(ctx, Item{ID: "img"})
	require.Equal(t, Materialized, first.Kind)
	require.Equal(t, 1, r.Blobs().Len())

	skew.Store(int64(2 * time.Minute))
	second := c.Resolve(ctx, Item{ID: "img"})
	require.EqualValues(t, 2, m.calls.Load(), "expired entry is resolved again")
	assert.NotEqual(t, first.URL, second.URL)
	assert.Equal(t, 1, r.Blobs().Len())
	_, ok := r.Blobs().Get(first.URL)
	assert.False(t, ok, "replaced blob is disposed")
	_, ok = r.Blobs().Get(second.URL)
	assert.True(t, ok)

	c.Resolve(ctx, Item{ID: "other"})
	require.Equal(t, 2, r.Blobs().Len())

	c.Forget(ctx, "img")
	assert.Equal(t, 1, r.Blobs().Len())
	_, ok = r.Blobs().Get(second.URL)
	assert.False(t, ok)

	c.ForgetGroup(ctx)
	assert.Zero(t, r.Blobs().Len())
}
