package imgcache

import (
	"context"
	"strings"
	"sync"
	"time"

	c "github.com/unkn0wn-root/imgcache/codec"
	"github.com/unkn0wn-root/imgcache/internal/wire"
	pr "github.com/unkn0wn-root/imgcache/provider"
)

type store[V any] struct {
	prefix   string
	provider pr.Provider // nil => fast tier only
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	now      func() time.Time

	mu   sync.RWMutex
	fast map[string]Entry[V]
}

func newStore[V any](opts Options[V]) (*store[V], error) {
	s := &store[V]{
		provider: opts.Provider,
		fast:     make(map[string]Entry[V]),
	}

	// defaults
	s.prefix = coalesce(opts.Prefix, DefaultPrefix)
	s.codec = coalesce[c.Codec[V]](opts.Codec, c.JSON[V]{})
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.now = clockOr(opts.Now)

	return s, nil
}

func (s *store[V]) Close(ctx context.Context) error {
	s.mu.Lock()
	s.fast = make(map[string]Entry[V])
	s.mu.Unlock()
	if s.provider != nil {
		return s.provider.Close(ctx)
	}
	return nil
}

func (s *store[V]) Set(ctx context.Context, key string, value V, opts SetOptions) Entry[V] {
	e := Entry[V]{
		Value:    value,
		StoredAt: s.now(),
		TTL:      opts.TTL,
		Version:  opts.Version,
	}

	s.mu.Lock()
	s.fast[key] = e
	s.mu.Unlock()

	if s.provider == nil {
		return e
	}
	if opts.Persist {
		s.persist(ctx, key, e)
	} else {
		// full overwrite: an older persisted value must not come back after restart
		s.durableDel(ctx, key)
	}
	return e
}

func (s *store[V]) persist(ctx context.Context, key string, e Entry[V]) {
	payload, err := s.codec.Encode(e.Value)
	if err != nil {
		s.durableFault("encode", key, err)
		s.durableDel(ctx, key)
		return
	}
	raw, err := wire.Encode(wire.Record{
		StoredAt: e.StoredAt,
		TTL:      e.TTL,
		Version:  e.Version,
		Payload:  payload,
	})
	if err != nil {
		s.durableFault("encode", key, err)
		s.durableDel(ctx, key)
		return
	}
	ok, err := s.provider.Set(ctx, s.durableKey(key), raw, e.TTL)
	if err != nil {
		s.durableFault("set", key, err)
		return
	}
	if !ok {
		s.durableFault("set", key, ErrRejected)
	}
}

func (s *store[V]) Get(ctx context.Context, key string) (V, bool) {
	return s.GetVersion(ctx, key, "")
}

func (s *store[V]) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

func (s *store[V]) GetVersion(ctx context.Context, key, expectedVersion string) (V, bool) {
	var zero V
	now := s.now()

	e, ok, stale := s.fastGet(key, now)
	if stale {
		s.hooks.Expired(key, TierFast)
	}
	if !ok {
		e, ok = s.durableGet(ctx, key, now)
		if !ok {
			return zero, false
		}
	}

	if expectedVersion != "" && e.Version != expectedVersion {
		s.hooks.VersionMismatch(key, expectedVersion, e.Version)
		return zero, false
	}
	return e.Value, true
}

// fastGet reads the fast tier, dropping the entry if it expired.
func (s *store[V]) fastGet(key string, now time.Time) (e Entry[V], ok, stale bool) {
	s.mu.RLock()
	e, ok = s.fast[key]
	s.mu.RUnlock()
	if !ok || !e.Expired(now) {
		return e, ok, false
	}

	s.mu.Lock()
	// re-check: a concurrent Set may have refreshed the key
	if cur, still := s.fast[key]; still && cur.Expired(now) {
		delete(s.fast, key)
	}
	s.mu.Unlock()
	return Entry[V]{}, false, true
}

// durableGet reads the durable tier and hydrates the fast tier on a live hit.
func (s *store[V]) durableGet(ctx context.Context, key string, now time.Time) (Entry[V], bool) {
	if s.provider == nil {
		return Entry[V]{}, false
	}
	dk := s.durableKey(key)
	raw, ok, err := s.provider.Get(ctx, dk)
	if err != nil {
		s.durableFault("get", key, err)
		return Entry[V]{}, false
	}
	if !ok {
		return Entry[V]{}, false
	}

	rec, err := wire.Decode(raw)
	if err != nil {
		s.selfHeal(ctx, key, "corrupt")
		return Entry[V]{}, false
	}
	if rec.Expired(now) {
		s.durableDel(ctx, key)
		s.hooks.Expired(key, TierDurable)
		return Entry[V]{}, false
	}
	v, err := s.codec.Decode(rec.Payload)
	if err != nil {
		s.selfHeal(ctx, key, "value_decode")
		return Entry[V]{}, false
	}

	e := Entry[V]{Value: v, StoredAt: rec.StoredAt, TTL: rec.TTL, Version: rec.Version}
	s.mu.Lock()
	if cur, exists := s.fast[key]; exists && !cur.Expired(now) {
		// a Set raced us; the fast tier stays authoritative
		e = cur
	} else {
		s.fast[key] = e
	}
	s.mu.Unlock()
	s.hooks.Hydrated(key)
	return e, true
}

func (s *store[V]) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.fast, key)
	s.mu.Unlock()
	s.durableDel(ctx, key)
}

func (s *store[V]) ClearByPrefix(ctx context.Context, prefix string) {
	removed := s.sweepFast(func(k string, _ Entry[V]) bool {
		return strings.HasPrefix(k, prefix)
	})
	removed += s.sweepDurable(ctx, prefix, nil)
	s.log.Debug("cleared by prefix", Fields{"prefix": prefix, "removed": removed})
	s.hooks.Swept("prefix", removed)
}

func (s *store[V]) ClearExpired(ctx context.Context) {
	now := s.now()
	removed := s.sweepFast(func(_ string, e Entry[V]) bool {
		return e.Expired(now)
	})
	removed += s.sweepDurable(ctx, "", func(r wire.Record) bool {
		return r.Expired(now)
	})
	s.log.Debug("cleared expired", Fields{"removed": removed})
	s.hooks.Swept("expired", removed)
}

func (s *store[V]) InvalidateVersion(ctx context.Context, currentVersion string) {
	removed := s.sweepFast(func(_ string, e Entry[V]) bool {
		return staleVersion(e.Version, currentVersion)
	})
	removed += s.sweepDurable(ctx, "", func(r wire.Record) bool {
		return staleVersion(r.Version, currentVersion)
	})
	s.log.Info("invalidated stale versions", Fields{"version": currentVersion, "removed": removed})
	s.hooks.Swept("version", removed)
}

func (s *store[V]) sweepFast(match func(key string, e Entry[V]) bool) int {
	removed := 0
	s.mu.Lock()
	for k, e := range s.fast {
		if match(k, e) {
			delete(s.fast, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// sweepDurable deletes durable records under keyPrefix. A nil match deletes all of them;
// otherwise only records that match, plus records that fail to decode.
func (s *store[V]) sweepDurable(ctx context.Context, keyPrefix string, match func(wire.Record) bool) int {
	if s.provider == nil {
		return 0
	}
	keys, err := s.provider.Keys(ctx, s.prefix+keyPrefix)
	if err != nil {
		s.durableFault("keys", keyPrefix, err)
		return 0
	}

	removed := 0
	for _, dk := range keys {
		if ctx.Err() != nil {
			break
		}
		if match != nil {
			raw, ok, err := s.provider.Get(ctx, dk)
			if err != nil {
				s.durableFault("get", s.userKey(dk), err)
				continue
			}
			if !ok {
				continue
			}
			if rec, err := wire.Decode(raw); err == nil && !match(rec) {
				continue
			}
		}
		if err := s.provider.Del(ctx, dk); err != nil {
			s.durableFault("del", s.userKey(dk), err)
			continue
		}
		removed++
	}
	return removed
}

func (s *store[V]) selfHeal(ctx context.Context, key, reason string) {
	s.durableDel(ctx, key)
	s.log.Debug("dropped unreadable durable entry", Fields{"key": key, "reason": reason})
	s.hooks.SelfHeal(key, reason)
}

func (s *store[V]) durableDel(ctx context.Context, key string) {
	if s.provider == nil {
		return
	}
	if err := s.provider.Del(ctx, s.durableKey(key)); err != nil {
		s.durableFault("del", key, err)
	}
}

func (s *store[V]) durableFault(op, key string, err error) {
	de := &DurableError{Op: op, Key: key, Err: err}
	s.log.Warn("durable tier failure", Fields{"op": op, "key": key, "err": err})
	s.hooks.DurableFailure(de)
}

func (s *store[V]) durableKey(userKey string) string {
	return s.prefix + userKey
}

func (s *store[V]) userKey(durableKey string) string {
	return strings.TrimPrefix(durableKey, s.prefix)
}
