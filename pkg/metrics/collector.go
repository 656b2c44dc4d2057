// Copyright 2025 The llm-d Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "oraculum"

// Session reset reasons used as label values.
const (
	ReasonUnknownToken = "unknown_token"
	ReasonNotAllowed   = "not_allowed"
	ReasonDeadEnd      = "dead_end"
)

var (
	// BiasQueries counts allowed-token computations.
	BiasQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bias", Name: "queries_total",
		Help: "Total number of allowed-token computations",
	})
	// BiasTransitions counts automaton transitions performed by bias queries.
	BiasTransitions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bias", Name: "transitions_total",
		Help: "Total number of automaton transitions attempted by bias queries",
	})
	// BiasPrunedSubtrees counts trie subtrees skipped because the automaton died.
	BiasPrunedSubtrees = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bias", Name: "pruned_subtrees_total",
		Help: "Total number of trie subtrees pruned on a dead automaton state",
	})
	// BiasCacheHits counts bias queries answered from the cache.
	BiasCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bias", Name: "cache_hits_total",
		Help: "Number of bias queries answered from the cache",
	})
	// BiasLatency logs latency of bias queries.
	BiasLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "bias", Name: "query_latency_seconds",
		Help:    "Latency of allowed-token computations in seconds",
		Buckets: prometheus.DefBuckets,
	})
	// BiasAllowedTokens observes the size of computed allowed sets.
	BiasAllowedTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "bias", Name: "allowed_tokens",
		Help:    "Number of allowed tokens per query",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// LatticeBuilds counts lattices built (cache misses).
	LatticeBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "lattice", Name: "builds_total",
		Help: "Total number of segmentation lattices built",
	})
	// LatticeCacheHits counts lattice requests served from the cache.
	LatticeCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "lattice", Name: "cache_hits_total",
		Help: "Number of lattice requests served from the cache",
	})
	// LatticeEdges counts edges recorded across all built lattices.
	LatticeEdges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "lattice", Name: "edges_total",
		Help: "Total number of lattice edges recorded",
	})

	// SessionConsumes counts successful token consumptions.
	SessionConsumes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "session", Name: "consumes_total",
		Help: "Total number of tokens consumed by sessions",
	})
	// SessionResets counts session resets by reason.
	SessionResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "session", Name: "resets_total",
		Help: "Total number of session resets",
	}, []string{"reason"})
)

// Collectors returns a slice of all registered Prometheus collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		BiasQueries, BiasTransitions, BiasPrunedSubtrees, BiasCacheHits, BiasLatency, BiasAllowedTokens,
		LatticeBuilds, LatticeCacheHits, LatticeEdges,
		SessionConsumes, SessionResets,
	}
}

var registerMetricsOnce = sync.Once{}

// Register registers all metrics with K8s registry.
func Register() {
	registerMetricsOnce.Do(func() {
		metrics.Registry.MustRegister(Collectors()...)
	})
}

// StartMetricsLogging spawns a goroutine that logs current metric values every
// interval until ctx is done.
func StartMetricsLogging(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logMetrics(ctx)
			}
		}
	}()
}

func counterValue(c prometheus.Counter) (float64, bool) {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0, false
	}
	return m.GetCounter().GetValue(), true
}

func logMetrics(ctx context.Context) {
	queries, ok := counterValue(BiasQueries)
	if !ok {
		return
	}
	transitions, ok := counterValue(BiasTransitions)
	if !ok {
		return
	}
	hits, ok := counterValue(BiasCacheHits)
	if !ok {
		return
	}
	builds, ok := counterValue(LatticeBuilds)
	if !ok {
		return
	}
	consumes, ok := counterValue(SessionConsumes)
	if !ok {
		return
	}

	var latencyMetric dto.Metric
	if err := BiasLatency.Write(&latencyMetric); err != nil {
		return
	}
	latencyCount := latencyMetric.GetHistogram().GetSampleCount()
	latencySum := latencyMetric.GetHistogram().GetSampleSum()
	latencyAvg := 0.0
	if latencyCount > 0 {
		latencyAvg = latencySum / float64(latencyCount)
	}

	klog.FromContext(ctx).WithName("metrics").Info("metrics beat",
		"bias_queries", queries,
		"bias_transitions", transitions,
		"bias_cache_hits", hits,
		"lattice_builds", builds,
		"session_consumes", consumes,
		"latency_count", latencyCount,
		"latency_avg", latencyAvg,
	)
}
