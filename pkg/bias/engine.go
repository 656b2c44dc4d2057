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

// Package bias computes, for an automaton state, the set of vocabulary tokens
// whose bytes keep the automaton alive.
package bias

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/metrics"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// Strategies selectable in Config.
const (
	StrategyTrie       = "trie"
	StrategyBruteForce = "brute-force"
)

// Stats describes the work done by one AllowedTokens call.
type Stats struct {
	// Transitions is the number of automaton steps attempted.
	Transitions int
	// Pruned is the number of trie subtrees skipped on a dead state.
	Pruned int
	// CacheHit is set when the result came from a cache.
	CacheHit bool
}

// Engine computes allowed-token sets.
//
// The returned set is owned by the caller. Engines never mutate the
// automaton, the trie or the vocabulary and are safe for concurrent use.
type Engine interface {
	// AllowedTokens returns the ids of all tokens t for which stepping the
	// automaton from state over the bytes of t does not reach a dead state.
	AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats)
}

// Config holds the configuration for the bias engine.
type Config struct {
	// Strategy is StrategyTrie (default) or StrategyBruteForce.
	Strategy string `json:"strategy"`
	// CacheConfig enables memoization of per-state results. Nil disables it.
	CacheConfig *CacheConfig `json:"cacheConfig"`

	// EnableMetrics toggles whether queries, transitions and latencies are
	// recorded.
	EnableMetrics bool `json:"enableMetrics"`
	// MetricsLoggingInterval defines the interval at which metrics are logged.
	// If zero, metrics logging is disabled.
	// Requires `EnableMetrics` to be true.
	MetricsLoggingInterval time.Duration `json:"metricsLoggingInterval"`
}

// DefaultConfig returns a default configuration for the bias engine.
func DefaultConfig() *Config {
	return &Config{
		Strategy:      StrategyTrie,
		CacheConfig:   DefaultCacheConfig(),
		EnableMetrics: false,
	}
}

// NewEngine creates the engine described by cfg over the given trie and
// vocabulary. The trie must have been built from the vocabulary.
func NewEngine(ctx context.Context, cfg *Config, trie *toktrie.Trie, v *vocab.Vocabulary) (Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var engine Engine
	switch cfg.Strategy {
	case "", StrategyTrie:
		engine = NewTrieEngine(trie)
	case StrategyBruteForce:
		engine = NewBruteForce(v)
	default:
		return nil, fmt.Errorf("unknown bias strategy %q", cfg.Strategy)
	}

	if cfg.CacheConfig != nil {
		cached, err := NewCachedEngine(cfg.CacheConfig, v.Fingerprint(), engine)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias cache: %w", err)
		}
		engine = cached
	}

	// wrap in metrics only if enabled
	if cfg.EnableMetrics {
		engine = NewInstrumentedEngine(engine)
		metrics.Register()
		if cfg.MetricsLoggingInterval > 0 {
			// this is non-blocking
			metrics.StartMetricsLogging(ctx, cfg.MetricsLoggingInterval)
		}
	}

	return engine, nil
}
