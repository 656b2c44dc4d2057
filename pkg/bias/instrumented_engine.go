/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bias

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/metrics"
)

type instrumentedEngine struct {
	next Engine
}

// NewInstrumentedEngine records every query of next in the bias metrics.
func NewInstrumentedEngine(next Engine) Engine {
	return &instrumentedEngine{next: next}
}

func (m *instrumentedEngine) AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats) {
	timer := prometheus.NewTimer(metrics.BiasLatency)
	defer timer.ObserveDuration()

	metrics.BiasQueries.Inc()

	allowed, stats := m.next.AllowedTokens(a, state)

	metrics.BiasTransitions.Add(float64(stats.Transitions))
	metrics.BiasPrunedSubtrees.Add(float64(stats.Pruned))
	metrics.BiasAllowedTokens.Observe(float64(allowed.Len()))
	if stats.CacheHit {
		metrics.BiasCacheHits.Inc()
	}

	return allowed, stats
}
