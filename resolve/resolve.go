package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/imgcache"
)

const (
	DefaultTimeout            = 6 * time.Second
	DefaultMaterializeTimeout = 30 * time.Second
)

var errEmptyPayload = errors.New("resolve: empty media payload")

// Item is one identifier to resolve.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// SourceKind tells how a Resource URL was obtained.
type SourceKind uint8

const (
	// Direct: a candidate URL loaded as is, or the last-resort view URL.
	Direct SourceKind = iota
	// Materialized: the raw bytes were fetched and are served from a Blob.
	Materialized
)

func (k SourceKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Materialized:
		return "materialized"
	default:
		return fmt.Sprintf("SourceKind(%d)", uint8(k))
	}
}

func (k SourceKind) MarshalText() ([]byte, error) {
	switch k {
	case Direct, Materialized:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("resolve: invalid source kind %d", uint8(k))
}

func (k *SourceKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "direct":
		*k = Direct
	case "materialized":
		*k = Materialized
	default:
		return fmt.Errorf("resolve: unknown source kind %q", b)
	}
	return nil
}

// Resource is the outcome of resolving one Item.
//
// Attempted is a diagnostic trail (candidate URLs in order, plus a materialization
// marker when one was tried). Log it; do not branch on it.
type Resource struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name,omitempty"`
	URL         string     `json:"url"`
	Kind        SourceKind `json:"kind"`
	Attempted   []string   `json:"attempted"`

	// Blob backs URL when Kind == Materialized. It is process-local and never serialized.
	Blob *Blob `json:"-" msgpack:"-" cbor:"-"`

	// guess marks the last-resort view URL: nothing was confirmed to load.
	guess bool
}

// Guess reports whether res is the unconfirmed last-resort view URL.
func (res Resource) Guess() bool { return res.guess }

// Options configures a Resolver. Zero values select defaults.
type Options struct {
	Timeout            time.Duration // per candidate; default 6s
	MaterializeTimeout time.Duration // per materialization; default 30s

	// Credential enables materialization. Empty disables it.
	Credential    string
	ThumbnailSize int // pixels; <= 0 => DefaultThumbnailSize
	Endpoints     Endpoints

	// EarlyMaterializeAfter is the number of failed candidates after which materialization
	// is tried before the remaining candidates. 0 => 1, negative => only after exhaustion.
	EarlyMaterializeAfter int

	Prober       Prober       // default HTTPProber
	Materializer Materializer // default HTTPMaterializer on Endpoints
	Blobs        *BlobStore   // default NewBlobStore("")

	Logger imgcache.Logger
	Hooks  Hooks
}

// Resolver resolves identifiers to loadable URLs. Safe for concurrent use.
type Resolver struct {
	timeout    time.Duration
	matTimeout time.Duration
	credential string
	thumbSize  int
	endpoints  Endpoints
	earlyAfter int

	prober Prober
	mat    Materializer
	blobs  *BlobStore

	log   imgcache.Logger
	hooks Hooks
}

func New(opts Options) *Resolver {
	r := &Resolver{
		timeout:    opts.Timeout,
		matTimeout: opts.MaterializeTimeout,
		credential: opts.Credential,
		thumbSize:  opts.ThumbnailSize,
		endpoints:  opts.Endpoints.withDefaults(),
		earlyAfter: opts.EarlyMaterializeAfter,
		prober:     opts.Prober,
		mat:        opts.Materializer,
		blobs:      opts.Blobs,
		log:        opts.Logger,
		hooks:      opts.Hooks,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.matTimeout <= 0 {
		r.matTimeout = DefaultMaterializeTimeout
	}
	if r.earlyAfter == 0 {
		r.earlyAfter = 1
	}
	if r.prober == nil {
		r.prober = HTTPProber{}
	}
	if r.mat == nil {
		r.mat = HTTPMaterializer{Endpoints: r.endpoints}
	}
	if r.blobs == nil {
		r.blobs = NewBlobStore("")
	}
	if r.log == nil {
		r.log = imgcache.NopLogger{}
	}
	if r.hooks == nil {
		r.hooks = NopHooks{}
	}
	return r
}

// Blobs is the store holding materialized images.
func (r *Resolver) Blobs() *BlobStore { return r.blobs }

// Resolve probes the candidates of it in order and returns the first that loads.
// It never fails: when nothing works, or ctx is done, the view URL is returned as Direct.
func (r *Resolver) Resolve(ctx context.Context, it Item) Resource {
	cands := Candidates(r.endpoints, it.ID, r.thumbSize)
	res := Resource{
		ID:          it.ID,
		DisplayName: it.DisplayName,
		Attempted:   make([]string, 0, len(cands)+1),
	}

	tried := false
	failed := 0
	for _, u := range cands {
		if ctx.Err() != nil {
			break
		}
		res.Attempted = append(res.Attempted, u)
		err := r.probe(ctx, u)
		if err == nil {
			return r.settle(res, u, Direct, nil)
		}
		failed++
		r.hooks.ProbeFailed(it.ID, u, err)
		r.log.Debug("probe failed", imgcache.Fields{"id": it.ID, "url": u, "err": err})

		if !tried && r.credential != "" && failed == r.earlyAfter && ctx.Err() == nil {
			tried = true
			if b := r.materialize(ctx, it.ID, MarkerEarly, &res); b != nil {
				return r.settle(res, b.URL, Materialized, b)
			}
		}
	}

	if !tried && r.credential != "" && ctx.Err() == nil {
		if b := r.materialize(ctx, it.ID, MarkerFinal, &res); b != nil {
			return r.settle(res, b.URL, Materialized, b)
		}
	}
	res.guess = true
	return r.settle(res, cands[0], Direct, nil)
}

// ResolveAll resolves items one after another and returns one Resource per item, in order.
func (r *Resolver) ResolveAll(ctx context.Context, items []Item) []Resource {
	out := make([]Resource, 0, len(items))
	for _, it := range items {
		out = append(out, r.Resolve(ctx, it))
	}
	return out
}

func (r *Resolver) settle(res Resource, url string, kind SourceKind, b *Blob) Resource {
	res.URL = url
	res.Kind = kind
	res.Blob = b
	r.hooks.Resolved(res.ID, kind, len(res.Attempted))
	r.log.Debug("resolved", imgcache.Fields{
		"id":       res.ID,
		"kind":     kind.String(),
		"attempts": len(res.Attempted),
		"guess":    res.guess,
	})
	return res
}

// probe waits for the prober at most r.timeout. The prober runs on its own goroutine
// with a buffered result channel; a result arriving after the timeout is dropped.
func (r *Resolver) probe(ctx context.Context, url string) error {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.prober.Probe(pctx, url) }()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		return pctx.Err()
	}
}

func (r *Resolver) materialize(ctx context.Context, id, stage string, res *Resource) *Blob {
	res.Attempted = append(res.Attempted, stage)

	mctx, cancel := context.WithTimeout(ctx, r.matTimeout)
	defer cancel()
	p, err := r.mat.Materialize(mctx, id, r.credential)
	if err == nil && len(p.Data) == 0 {
		err = errEmptyPayload
	}
	r.hooks.Materialized(id, stage, err)
	if err != nil {
		r.log.Warn("materialize failed", imgcache.Fields{"id": id, "stage": stage, "err": err})
		return nil
	}
	return r.blobs.Put(id, p.ContentType, p.Data)
}
