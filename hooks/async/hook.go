// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ExpiredEvery:     10, // sample logs: ~every 10th expiry
//	    ProbeFailedEvery: 1,  // log every failed probe
//	})
//
//	hooks := asynchook.New(raw, raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := imgcache.New[resolve.Resource](imgcache.Options[resolve.Resource]{
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
//	r := resolve.New(resolve.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/resolve"
)

// Hooks forwards store and resolver events to inner hooks on worker goroutines.
// When the queue is full events are dropped and counted.
type Hooks struct {
	store   imgcache.Hooks
	res     resolve.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var (
	_ imgcache.Hooks = (*Hooks)(nil)
	_ resolve.Hooks  = (*Hooks)(nil)
)

// New starts workers draining a queue of qlen events. Either inner may be nil.
func New(store imgcache.Hooks, res resolve.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if store == nil {
		store = imgcache.NopHooks{}
	}
	if res == nil {
		res = resolve.NopHooks{}
	}

	h := &Hooks{store: store, res: res, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed Hooks.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send raced with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hydrated(k string)                 { h.try(func() { h.store.Hydrated(k) }) }
func (h *Hooks) Expired(k string, t imgcache.Tier) { h.try(func() { h.store.Expired(k, t) }) }
func (h *Hooks) SelfHeal(k, r string)              { h.try(func() { h.store.SelfHeal(k, r) }) }
func (h *Hooks) Swept(op string, n int)            { h.try(func() { h.store.Swept(op, n) }) }
func (h *Hooks) DurableFailure(e *imgcache.DurableError) {
	h.try(func() { h.store.DurableFailure(e) })
}
func (h *Hooks) VersionMismatch(k, want, got string) {
	h.try(func() { h.store.VersionMismatch(k, want, got) })
}

func (h *Hooks) ProbeFailed(id, url string, err error) {
	h.try(func() { h.res.ProbeFailed(id, url, err) })
}
func (h *Hooks) Materialized(id, stage string, err error) {
	h.try(func() { h.res.Materialized(id, stage, err) })
}
func (h *Hooks) Resolved(id string, k resolve.SourceKind, n int) {
	h.try(func() { h.res.Resolved(id, k, n) })
}
