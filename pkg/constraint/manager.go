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

// Package constraint wires the vocabulary, trie, bias engine, lattice builder
// and session store into a Manager that creates and restores sessions.
package constraint

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/lattice"
	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/session/store"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

const defaultAutomatonCacheSize = 256

// Config holds the configuration for the Manager.
// The configuration cover the different components wired by the Manager.
type Config struct {
	BiasConfig         *bias.Config        `json:"biasConfig"`
	LatticeConfig      *lattice.Config     `json:"latticeConfig"`
	LatticePoolConfig  *lattice.PoolConfig `json:"latticePoolConfig"`
	SessionStoreConfig *store.Config       `json:"sessionStoreConfig"`
	// AutomatonCacheSize is the number of compiled automata kept.
	AutomatonCacheSize int `json:"automatonCacheSize"`
}

// NewDefaultConfig returns a default configuration for the Manager.
func NewDefaultConfig() *Config {
	return &Config{
		BiasConfig:         bias.DefaultConfig(),
		LatticeConfig:      lattice.DefaultConfig(),
		LatticePoolConfig:  lattice.DefaultPoolConfig(),
		SessionStoreConfig: store.DefaultConfig(),
		AutomatonCacheSize: defaultAutomatonCacheSize,
	}
}

// Manager owns the shared, read-only structures built from one vocabulary and
// hands out independent sessions over them.
type Manager struct {
	vocab    *vocab.Vocabulary
	trie     *toktrie.Trie
	engine   bias.Engine
	lattices *lattice.Builder
	pool     *lattice.Pool
	store    store.Store
	automata *lru.Cache[automaton.Spec, automaton.Automaton]
}

// NewManager builds the trie once and creates every component from config.
func NewManager(ctx context.Context, config *Config, v *vocab.Vocabulary) (*Manager, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	trie := toktrie.Build(v)
	klog.FromContext(ctx).WithName("constraint.NewManager").Info("built token trie",
		"tokens", trie.NumTokens(), "nodes", trie.NumNodes(), "maxDepth", trie.MaxDepth(),
		"shadowed", len(trie.Shadowed()))

	engine, err := bias.NewEngine(ctx, config.BiasConfig, trie, v)
	if err != nil {
		return nil, fmt.Errorf("failed to create bias engine: %w", err)
	}

	lattices, err := lattice.NewBuilder(config.LatticeConfig, v, trie)
	if err != nil {
		return nil, fmt.Errorf("failed to create lattice builder: %w", err)
	}

	sessions, err := store.NewStore(ctx, config.SessionStoreConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	cacheSize := config.AutomatonCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultAutomatonCacheSize
	}
	automata, err := lru.New[automaton.Spec, automaton.Automaton](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create automaton cache: %w", err)
	}

	return &Manager{
		vocab:    v,
		trie:     trie,
		engine:   engine,
		lattices: lattices,
		pool:     lattice.NewPool(config.LatticePoolConfig, lattices),
		store:    sessions,
		automata: automata,
	}, nil
}

// Run starts the lattice warm-up workers and blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	m.pool.Run(ctx)
}

// Vocabulary returns the managed vocabulary.
func (m *Manager) Vocabulary() *vocab.Vocabulary {
	return m.vocab
}

// Trie returns the token trie.
func (m *Manager) Trie() *toktrie.Trie {
	return m.trie
}

// Engine returns the bias engine.
func (m *Manager) Engine() bias.Engine {
	return m.engine
}

// Store returns the session store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Prefetch schedules background lattice builds for inputs that sessions are
// expected to walk soon.
func (m *Manager) Prefetch(inputs ...string) {
	for _, input := range inputs {
		m.pool.AddTask(input)
	}
}

// Lattice returns the lattice of input.
func (m *Manager) Lattice(ctx context.Context, input []byte) *lattice.Lattice {
	return m.lattices.Build(ctx, input)
}

// LatticeCached reports whether the lattice of input is already built.
func (m *Manager) LatticeCached(input []byte) bool {
	return m.lattices.Cached(input)
}

// Compile compiles spec, or fallback when spec is rejected. See
// automaton.CompileWithFallback.
func (m *Manager) Compile(ctx context.Context, spec automaton.Spec, fallback *automaton.Spec) (*automaton.Compiled, error) {
	logger := klog.FromContext(ctx).WithName("constraint.Compile")
	return automaton.CompileWithFallbackFunc(logger, m.compile, spec, fallback)
}

func (m *Manager) compile(spec automaton.Spec) (automaton.Automaton, error) {
	if a, ok := m.automata.Get(spec); ok {
		return a, nil
	}
	a, err := automaton.Compile(spec)
	if err != nil {
		return nil, err
	}
	m.automata.Add(spec, a)
	return a, nil
}

// NewLatticeSession starts a session spelling input.
func (m *Manager) NewLatticeSession(ctx context.Context, input []byte) *session.LatticeWalker {
	return session.NewLatticeWalker(ctx, m.lattices.Build(ctx, input), m.vocab)
}

// NewAutomatonSession starts a session constrained by spec, or by fallback if
// spec is rejected. The returned Compiled tells which one is in use.
func (m *Manager) NewAutomatonSession(ctx context.Context, spec automaton.Spec, fallback *automaton.Spec,
) (*session.AutomatonWalker, *automaton.Compiled, error) {
	compiled, err := m.Compile(ctx, spec, fallback)
	if err != nil {
		return nil, nil, err
	}
	w := session.NewAutomatonWalker(ctx, compiled.Automaton, compiled.Spec, m.engine, m.vocab)
	return w, compiled, nil
}

// Restore rebuilds a walker from a snapshot by replaying its output. A
// snapshot whose output no longer replays, e.g. after a vocabulary change,
// restores to a reset walker.
func (m *Manager) Restore(ctx context.Context, snap *session.Snapshot) (session.Walker, error) {
	var w session.Walker
	switch snap.Mode {
	case session.ModeLattice:
		w = m.NewLatticeSession(ctx, snap.Input)
	case session.ModeAutomaton:
		a, err := m.compile(snap.Automaton)
		if err != nil {
			return nil, fmt.Errorf("failed to restore session: %w", err)
		}
		w = session.NewAutomatonWalker(ctx, a, snap.Automaton, m.engine, m.vocab)
	default:
		return nil, fmt.Errorf("unknown session mode %q", snap.Mode)
	}

	if !session.Replay(w, snap.Output) {
		klog.FromContext(ctx).V(logging.DEBUG).WithName("constraint.Restore").Info(
			"snapshot did not replay, session reset", "mode", snap.Mode, "tokens", len(snap.Output))
	}
	return w, nil
}
