// Package metrics declares the Prometheus collectors shared by the engine
// components. They register with the default registry, which the server
// exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by result (hit, miss, negative, expired).",
	}, []string{"result"})

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "ratelimit_decisions_total",
		Help:      "Write admission decisions by identity class and result.",
	}, []string{"class", "result"})

	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "allocations_total",
		Help:      "Code allocations by outcome (created, deduped, raced, failed).",
	}, []string{"outcome"})

	ClicksRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "clicks_recorded_total",
		Help:      "Click events accepted into the aggregation buffer.",
	})

	ClicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "clicks_dropped_total",
		Help:      "Click events dropped because the buffer was full or the flush failed.",
	})

	ClicksFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "clicks_flushed_total",
		Help:      "Click events written to the store.",
	})

	FlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortlink",
		Name:      "click_flush_failures_total",
		Help:      "Batched click flushes that failed after retries.",
	})
)
