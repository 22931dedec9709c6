// Package promhooks counts store and resolver events as prometheus metrics.
package promhooks

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/imgcache"
	"github.com/unkn0wn-root/imgcache/resolve"
)

type Hooks struct {
	hydrated        prometheus.Counter
	expired         *prometheus.CounterVec
	versionMismatch prometheus.Counter
	selfHeal        *prometheus.CounterVec
	durableFailures *prometheus.CounterVec
	swept           *prometheus.CounterVec

	probeFailures *prometheus.CounterVec
	materialize   *prometheus.CounterVec
	resolved      *prometheus.CounterVec
	attempts      prometheus.Histogram
}

var (
	_ imgcache.Hooks = (*Hooks)(nil)
	_ resolve.Hooks  = (*Hooks)(nil)
)

// New registers the metrics on reg under namespace ("" => "imgcache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "imgcache"
	}
	h := &Hooks{}
	h.hydrated = prometheus.NewCounter(opts(namespace, "store", "hydrations_total", "Durable hits copied into the fast tier."))
	h.expired = prometheus.NewCounterVec(opts(namespace, "store", "expired_total", "Entries found expired on read."), []string{"tier"})
	h.versionMismatch = prometheus.NewCounter(opts(namespace, "store", "version_mismatches_total", "Reads rejected because of a stale version tag."))
	h.selfHeal = prometheus.NewCounterVec(opts(namespace, "store", "self_heals_total", "Undecodable durable records deleted on read."), []string{"reason"})
	h.durableFailures = prometheus.NewCounterVec(opts(namespace, "store", "durable_failures_total", "Swallowed durable-tier errors."), []string{"op"})
	h.swept = prometheus.NewCounterVec(opts(namespace, "store", "swept_entries_total", "Entries removed by bulk operations."), []string{"op"})
	h.probeFailures = prometheus.NewCounterVec(opts(namespace, "resolver", "probe_failures_total", "Candidate URLs that failed or timed out."), []string{"reason"})
	h.materialize = prometheus.NewCounterVec(opts(namespace, "resolver", "materializations_total", "Materialization attempts."), []string{"stage", "result"})
	h.resolved = prometheus.NewCounterVec(opts(namespace, "resolver", "resolved_total", "Resolved identifiers by source kind."), []string{"kind"})
	h.attempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "attempts",
		Help:      "Entries in the attempted trail per resolution.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
	for _, c := range []prometheus.Collector{
		h.hydrated, h.expired, h.versionMismatch, h.selfHeal, h.durableFailures, h.swept,
		h.probeFailures, h.materialize, h.resolved, h.attempts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("promhooks: register: %w", err)
		}
	}
	return h, nil
}

func opts(namespace, subsystem, name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
}

func (h *Hooks) Hydrated(string)                   { h.hydrated.Inc() }
func (h *Hooks) Expired(_ string, t imgcache.Tier) { h.expired.WithLabelValues(string(t)).Inc() }
func (h *Hooks) VersionMismatch(_, _, _ string)    { h.versionMismatch.Inc() }
func (h *Hooks) SelfHeal(_, reason string)         { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) DurableFailure(err *imgcache.DurableError) {
	h.durableFailures.WithLabelValues(err.Op).Inc()
}
func (h *Hooks) Swept(op string, removed int) { h.swept.WithLabelValues(op).Add(float64(removed)) }

func (h *Hooks) ProbeFailed(_, _ string, err error) {
	h.probeFailures.WithLabelValues(probeReason(err)).Inc()
}

func (h *Hooks) Materialized(_, stage string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.materialize.WithLabelValues(stage, result).Inc()
}

func (h *Hooks) Resolved(_ string, kind resolve.SourceKind, attempts int) {
	h.resolved.WithLabelValues(kind.String()).Inc()
	h.attempts.Observe(float64(attempts))
}
