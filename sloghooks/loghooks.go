// Package sloghooks logs store and resolver events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/resolve"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery     uint64
	ProbeFailedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr     atomic.Uint64
	probeFailedCtr atomic.Uint64
}

var (
	_ imgcache.Hooks = (*Hooks)(nil)
	_ resolve.Hooks  = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hydrated(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("imgcache.hydrated", "key", h.redact(key))
}

func (h *Hooks) Expired(key string, tier imgcache.Tier) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("imgcache.expired",
		"key", h.redact(key),
		"tier", string(tier))
}

func (h *Hooks) VersionMismatch(key, want, got string) {
	if h.l == nil {
		return
	}
	h.l.Debug("imgcache.version_mismatch",
		"key", h.redact(key),
		"want", want,
		"got", got)
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("imgcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) DurableFailure(err *imgcache.DurableError) {
	if h.l == nil {
		return
	}
	h.l.Warn("imgcache.durable_failure",
		"op", err.Op,
		"key", h.redact(err.Key),
		"err", err.Err)
}

func (h *Hooks) Swept(op string, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("imgcache.swept",
		"op", op,
		"removed", removed)
}

func (h *Hooks) ProbeFailed(id, url string, err error) {
	if h.l == nil || !sample(h.opts.ProbeFailedEvery, &h.probeFailedCtr) {
		return
	}
	h.l.Debug("resolve.probe_failed",
		"id", id,
		"url", url,
		"err", err)
}

func (h *Hooks) Materialized(id, stage string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("resolve.materialize_failed",
			"id", id,
			"stage", stage,
			"err", err)
		return
	}
	h.l.Info("resolve.materialized",
		"id", id,
		"stage", stage)
}

func (h *Hooks) Resolved(id string, kind resolve.SourceKind, attempts int) {
	if h.l == nil {
		return
	}
	h.l.Debug("resolve.resolved",
		"id", id,
		"kind", kind.String(),
		"attempts", attempts)
}
