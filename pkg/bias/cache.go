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
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
)

const (
	defaultNumCounters = 1e6 // 1M keys
	defaultBufferItems = 64  // default buffer size for ristretto

	// per-entry bookkeeping and per-id footprint estimates, in bytes.
	entryOverhead = 96
	bytesPerID    = 16
)

// CacheConfig holds the configuration for CachedEngine.
type CacheConfig struct {
	// Size is the maximum memory size that can be used by cached results.
	// Supports human-readable formats like "64MiB", "1GB", etc.
	Size string `json:"size,omitempty"`
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Size: "64MiB",
	}
}

type cacheEntry struct {
	fingerprint uint64
	state       automaton.State
	allowed     sets.Set[uint32]
}

// CachedEngine memoizes the results of another engine per automaton state.
//
// Entries are keyed by a namespace (the vocabulary fingerprint), the
// automaton's fingerprint and the state, so only automata implementing
// automaton.Fingerprinter are cached; others are passed through. The cache is
// cost-aware: large allowed sets weigh more.
type CachedEngine struct {
	next      Engine
	namespace uint64
	cache     *ristretto.Cache[uint64, *cacheEntry]
}

var _ Engine = &CachedEngine{}

// NewCachedEngine wraps next with a cache bounded by cfg.Size. namespace
// separates results computed over different vocabularies.
func NewCachedEngine(cfg *CacheConfig, namespace uint64, next Engine) (*CachedEngine, error) {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}

	sizeBytes, err := humanize.ParseBytes(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache size: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, *cacheEntry]{
		NumCounters: defaultNumCounters, // number of keys to track.
		MaxCost:     int64(sizeBytes),   // #nosec G115 , maximum cost of cache
		BufferItems: defaultBufferItems, // number of keys per Get buffer.
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bias cache: %w", err)
	}

	return &CachedEngine{next: next, namespace: namespace, cache: cache}, nil
}

func cacheKey(namespace, fingerprint uint64, state automaton.State) uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[:8], namespace)
	binary.LittleEndian.PutUint64(buf[8:16], fingerprint)
	binary.LittleEndian.PutUint32(buf[16:], uint32(state))
	return xxhash.Sum64(buf[:])
}

// AllowedTokens implements Engine. Cached results are returned as copies.
func (e *CachedEngine) AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats) {
	fp, ok := a.(automaton.Fingerprinter)
	if !ok {
		return e.next.AllowedTokens(a, state)
	}

	fingerprint := fp.Fingerprint()
	key := cacheKey(e.namespace, fingerprint, state)
	if entry, found := e.cache.Get(key); found && entry.fingerprint == fingerprint && entry.state == state {
		return entry.allowed.Clone(), Stats{CacheHit: true}
	}

	allowed, stats := e.next.AllowedTokens(a, state)
	entry := &cacheEntry{fingerprint: fingerprint, state: state, allowed: allowed.Clone()}
	e.cache.Set(key, entry, int64(entryOverhead+bytesPerID*allowed.Len()))
	e.cache.Wait()

	return allowed, stats
}

// MaxCost returns the configured capacity in bytes.
func (e *CachedEngine) MaxCost() int64 {
	return e.cache.MaxCost()
}

// Close releases the cache.
func (e *CachedEngine) Close() {
	e.cache.Close()
}
