package imgcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/imgcache/codec"
	pr "github.com/unkn0wn-root/imgcache/provider"
)

// DefaultPrefix namespaces every durable key so the durable tier can share a
// physical store with unrelated data.
const DefaultPrefix = "imgcache:"

// Store is the two-tier cache API. V is the caller's value type; the durable
// tier serializes it with a pluggable Codec[V].
type Store[V any] interface {
	// Set always writes the fast tier and, when opts.Persist is set, the durable tier.
	// Durable failures are swallowed.
	Set(ctx context.Context, key string, value V, opts SetOptions) Entry[V]

	Get(ctx context.Context, key string) (v V, ok bool)
	// GetVersion treats an entry whose version differs from expectedVersion as a miss
	// without removing it. An empty expectedVersion behaves like Get.
	GetVersion(ctx context.Context, key, expectedVersion string) (v V, ok bool)
	Has(ctx context.Context, key string) bool

	Delete(ctx context.Context, key string)
	ClearByPrefix(ctx context.Context, prefix string)
	ClearExpired(ctx context.Context)
	// InvalidateVersion removes every versioned entry whose version differs from
	// currentVersion. Unversioned entries are kept.
	InvalidateVersion(ctx context.Context, currentVersion string)

	Close(ctx context.Context) error
}

// SetOptions controls a single write. The zero value stores a non-expiring,
// unversioned, fast-tier-only entry.
type SetOptions struct {
	TTL     time.Duration // 0 => never expires by time
	Persist bool          // also write the durable tier
	Version string        // "" => unversioned
}

// Options configure a Store. All fields are optional.
type Options[V any] struct {
	Provider pr.Provider // durable tier; nil => fast tier only
	Codec    c.Codec[V]  // durable payload codec; nil => codec.JSON[V]
	Prefix   string      // durable key namespace; "" => DefaultPrefix

	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Now    func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Store[V], error) {
	return newStore[V](opts)
}
