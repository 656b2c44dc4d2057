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

package lattice

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/metrics"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

const defaultCacheSize = 1024

// Config holds the configuration for the lattice Builder.
type Config struct {
	// Scanner is ScannerAhoCorasick (default) or ScannerTrie.
	Scanner string `json:"scanner"`
	// CacheSize is the number of lattices kept. Zero disables caching.
	CacheSize int `json:"cacheSize"`
}

// DefaultConfig returns a default configuration for the lattice Builder.
func DefaultConfig() *Config {
	return &Config{
		Scanner:   ScannerAhoCorasick,
		CacheSize: defaultCacheSize,
	}
}

// Builder builds lattices over one vocabulary and keeps the most recently
// used ones. Concurrent requests for the same input share one build.
type Builder struct {
	vocab   *vocab.Vocabulary
	scanner Scanner
	cache   *lru.Cache[uint64, *Lattice]
	group   singleflight.Group
}

// NewBuilder creates a Builder. The trie is only used by the trie scanner.
func NewBuilder(cfg *Config, v *vocab.Vocabulary, trie *toktrie.Trie) (*Builder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	scanner, err := NewScanner(cfg.Scanner, v, trie)
	if err != nil {
		return nil, err
	}

	b := &Builder{vocab: v, scanner: scanner}
	if cfg.CacheSize > 0 {
		b.cache, err = lru.New[uint64, *Lattice](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize lattice cache: %w", err)
		}
	}
	return b, nil
}

// Build returns the lattice of input, from the cache when possible.
func (b *Builder) Build(ctx context.Context, input []byte) *Lattice {
	traceLogger := klog.FromContext(ctx).V(logging.TRACE).WithName("lattice.Builder.Build")

	if b.cache == nil {
		return b.build(input)
	}

	key := xxhash.Sum64(input)
	if l, ok := b.cache.Get(key); ok && bytes.Equal(l.input, input) {
		metrics.LatticeCacheHits.Inc()
		traceLogger.Info("lattice cache hit", "inputLen", len(input))
		return l
	}

	result, _, shared := b.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		return b.build(input), nil
	})
	l, _ := result.(*Lattice) //nolint:errcheck // always a *Lattice
	if !bytes.Equal(l.input, input) {
		// Hash collision with a concurrent build of another input.
		return b.build(input)
	}

	if !shared {
		// Only add to cache if this goroutine actually built the lattice
		b.cache.Add(key, l)
	}
	traceLogger.Info("lattice built", "inputLen", len(input), "edges", l.NumEdges(), "shared", shared)
	return l
}

// Cached reports whether the lattice of input is in the cache.
func (b *Builder) Cached(input []byte) bool {
	if b.cache == nil {
		return false
	}
	l, ok := b.cache.Peek(xxhash.Sum64(input))
	return ok && bytes.Equal(l.input, input)
}

func (b *Builder) build(input []byte) *Lattice {
	l := Build(input, b.vocab, b.scanner)
	metrics.LatticeBuilds.Inc()
	metrics.LatticeEdges.Add(float64(l.NumEdges()))
	return l
}
