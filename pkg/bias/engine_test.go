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

package bias_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	. "github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

func mustVocab(t *testing.T, tokens ...string) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.FromStrings(tokens...)
	require.NoError(t, err)
	return v
}

func mustLiterals(t *testing.T, pattern string) *automaton.LiteralSet {
	t.Helper()
	a, err := automaton.NewLiteralSet(pattern)
	require.NoError(t, err)
	return a
}

// reachableStates collects every live state reachable from the start state
// over the given alphabet.
func reachableStates(a automaton.Automaton, alphabet string) []automaton.State {
	seen := map[automaton.State]bool{a.Start(): true}
	queue := []automaton.State{a.Start()}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for i := 0; i < len(alphabet); i++ {
			next := a.Step(s, alphabet[i])
			if automaton.IsDead(next) || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	states := make([]automaton.State, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	return states
}

func TestTrieEngine_TwoLiterals(t *testing.T) {
	v := mustVocab(t, "a", "b", "c", "ab")
	a := mustLiterals(t, "ab|ac")
	engine := NewTrieEngine(toktrie.Build(v))

	allowed, _ := engine.AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](0, 3), allowed) // a, ab

	afterA := automaton.StepBytes(a, a.Start(), []byte("a"))
	allowed, _ = engine.AllowedTokens(a, afterA)
	assert.Equal(t, sets.New[uint32](1, 2), allowed) // b, c

	done := automaton.StepBytes(a, a.Start(), []byte("ab"))
	allowed, _ = engine.AllowedTokens(a, done)
	assert.Empty(t, allowed)
}

func TestTrieEngine_EmptyVocabulary(t *testing.T) {
	v, err := vocab.New(nil)
	require.NoError(t, err)
	a := mustLiterals(t, "ab|ac")

	for _, engine := range []Engine{NewTrieEngine(toktrie.Build(v)), NewBruteForce(v)} {
		allowed, stats := engine.AllowedTokens(a, a.Start())
		assert.Empty(t, allowed)
		assert.Zero(t, stats.Transitions)
	}
}

func TestTrieEngine_DeadState(t *testing.T) {
	v := mustVocab(t, "a", "b")
	a := mustLiterals(t, "ab")
	allowed, stats := NewTrieEngine(toktrie.Build(v)).AllowedTokens(a, automaton.DeadState)
	assert.Empty(t, allowed)
	assert.Zero(t, stats.Transitions)
}

func TestTrieEngine_TerminalInsideSubtree(t *testing.T) {
	// "mo" lives on the path to "monday" but "mon" is dead for "mo|mx".
	v := mustVocab(t, "m", "mo", "mon", "monday", "mx")
	a := mustLiterals(t, "mo|mx")

	allowed, _ := NewTrieEngine(toktrie.Build(v)).AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](0, 1, 4), allowed)
}

func TestTrieEngine_PrunesWork(t *testing.T) {
	letters := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		letters = append(letters, string(c))
	}
	tokens := append(letters, "mon", "monday", "tue", "tues", "day", "sday", "nesday", "thu", "fri", "xyz", "xylophone")
	v := mustVocab(t, tokens...)
	a := mustLiterals(t, "monday|tuesday|wednesday|thursday|friday")

	trieAllowed, trieStats := NewTrieEngine(toktrie.Build(v)).AllowedTokens(a, a.Start())
	bruteAllowed, bruteStats := NewBruteForce(v).AllowedTokens(a, a.Start())

	assert.Equal(t, bruteAllowed, trieAllowed)
	assert.Less(t, trieStats.Transitions, bruteStats.Transitions)
	assert.Positive(t, trieStats.Pruned)
}

func TestEquivalence_Random(t *testing.T) {
	const alphabet = "abcd"
	rng := rand.New(rand.NewPCG(7, 11))

	randomString := func(maxLen int) string {
		b := make([]byte, 1+rng.IntN(maxLen))
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	}

	for round := 0; round < 40; round++ {
		seen := map[string]bool{}
		var tokens []string
		for len(tokens) < 10+rng.IntN(40) {
			tok := randomString(4)
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
		v := mustVocab(t, tokens...)
		trieEngine := NewTrieEngine(toktrie.Build(v))
		brute := NewBruteForce(v)

		literals := make([]string, 1+rng.IntN(6))
		for i := range literals {
			literals[i] = randomString(8)
		}
		automata := []automaton.Automaton{automaton.NewPrefix([]byte(randomString(3)))}
		lits, err := automaton.NewLiteralSetFromStrings(literals)
		require.NoError(t, err)
		automata = append(automata, lits)

		for _, a := range automata {
			for _, state := range reachableStates(a, alphabet) {
				want, _ := brute.AllowedTokens(a, state)
				got, _ := trieEngine.AllowedTokens(a, state)
				require.Equal(t, want, got, "round %d, literals %q, state %d", round, literals, state)
			}
		}
	}
}

func TestEquivalence_ShadowedIDs(t *testing.T) {
	v, err := vocab.New([]vocab.Token{
		{ID: 1, Bytes: []byte("ab")},
		{ID: 2, Bytes: []byte("ab")},
		{ID: 3, Bytes: []byte("a")},
	})
	require.NoError(t, err)
	a := mustLiterals(t, "ab")

	want, _ := NewBruteForce(v).AllowedTokens(a, a.Start())
	got, _ := NewTrieEngine(toktrie.Build(v)).AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](1, 3), got)
	assert.Equal(t, want, got)
}

func TestNewEngine(t *testing.T) {
	ctx := context.Background()
	v := mustVocab(t, "a", "b", "c", "ab")
	trie := toktrie.Build(v)
	a := mustLiterals(t, "ab|ac")

	cases := []struct {
		name string
		cfg  *Config
	}{
		{name: "default", cfg: nil},
		{name: "trie without cache", cfg: &Config{Strategy: StrategyTrie}},
		{name: "brute force", cfg: &Config{Strategy: StrategyBruteForce}},
		{name: "instrumented", cfg: &Config{Strategy: StrategyTrie, CacheConfig: DefaultCacheConfig(), EnableMetrics: true}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			engine, err := NewEngine(ctx, c.cfg, trie, v)
			require.NoError(t, err)
			allowed, _ := engine.AllowedTokens(a, a.Start())
			assert.Equal(t, sets.New[uint32](0, 3), allowed)
		})
	}

	_, err := NewEngine(ctx, &Config{Strategy: "psychic"}, trie, v)
	require.Error(t, err)

	_, err = NewEngine(ctx, &Config{CacheConfig: &CacheConfig{Size: "lots"}}, trie, v)
	require.Error(t, err)
}
