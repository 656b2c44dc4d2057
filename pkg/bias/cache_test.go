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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	. "github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
)

// MockEngine implements the Engine interface for testing.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats) {
	args := m.Called(a, state)
	return args.Get(0).(sets.Set[uint32]), args.Get(1).(Stats) //nolint:errcheck // return mocked values
}

// opaque hides the Fingerprinter implementation of the wrapped automaton.
type opaque struct {
	automaton.Automaton
}

func TestCachedEngine_HitAfterMiss(t *testing.T) {
	a := mustLiterals(t, "ab|ac")
	next := &MockEngine{}
	next.On("AllowedTokens", a, a.Start()).Return(sets.New[uint32](0, 3), Stats{Transitions: 5}).Once()

	cached, err := NewCachedEngine(DefaultCacheConfig(), 0, next)
	require.NoError(t, err)
	t.Cleanup(cached.Close)

	allowed, stats := cached.AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](0, 3), allowed)
	assert.False(t, stats.CacheHit)

	allowed, stats = cached.AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](0, 3), allowed)
	assert.True(t, stats.CacheHit)

	next.AssertExpectations(t)
}

func TestCachedEngine_ReturnsCopies(t *testing.T) {
	v := mustVocab(t, "a", "b", "c", "ab")
	a := mustLiterals(t, "ab|ac")

	cached, err := NewCachedEngine(DefaultCacheConfig(), v.Fingerprint(), NewTrieEngine(toktrie.Build(v)))
	require.NoError(t, err)
	t.Cleanup(cached.Close)

	first, _ := cached.AllowedTokens(a, a.Start())
	first.Insert(99)

	second, _ := cached.AllowedTokens(a, a.Start())
	assert.Equal(t, sets.New[uint32](0, 3), second)
}

func TestCachedEngine_DistinguishesAutomata(t *testing.T) {
	v := mustVocab(t, "a", "b", "c", "ab")
	trie := toktrie.Build(v)

	cached, err := NewCachedEngine(DefaultCacheConfig(), v.Fingerprint(), NewTrieEngine(trie))
	require.NoError(t, err)
	t.Cleanup(cached.Close)

	ab := mustLiterals(t, "ab")
	cb := mustLiterals(t, "cb")

	// Both start in state 1, only the fingerprint tells them apart.
	require.Equal(t, ab.Start(), cb.Start())
	first, _ := cached.AllowedTokens(ab, ab.Start())
	second, _ := cached.AllowedTokens(cb, cb.Start())
	assert.Equal(t, sets.New[uint32](0, 3), first)
	assert.Equal(t, sets.New[uint32](2), second)
}

func TestCachedEngine_PermutedAlternation(t *testing.T) {
	v := mustVocab(t, "a", "b", "c", "d")
	cached, err := NewCachedEngine(DefaultCacheConfig(), v.Fingerprint(), NewTrieEngine(toktrie.Build(v)))
	require.NoError(t, err)
	t.Cleanup(cached.Close)

	abcd := mustLiterals(t, "ab|cd")
	cdab := mustLiterals(t, "cd|ab")

	afterA, _ := cached.AllowedTokens(abcd, abcd.Step(abcd.Start(), 'a'))
	assert.Equal(t, sets.New[uint32](1), afterA)

	afterC, _ := cached.AllowedTokens(cdab, cdab.Step(cdab.Start(), 'c'))
	assert.Equal(t, sets.New[uint32](3), afterC)
}

func TestCachedEngine_CoherentWithBruteForce(t *testing.T) {
	const alphabet = "abcd"
	rng := rand.New(rand.NewPCG(3, 5))

	randomString := func(maxLen int) string {
		b := make([]byte, 1+rng.IntN(maxLen))
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	}

	for round := 0; round < 20; round++ {
		seen := map[string]bool{}
		var tokens []string
		for len(tokens) < 8+rng.IntN(30) {
			tok := randomString(3)
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
		v := mustVocab(t, tokens...)
		brute := NewBruteForce(v)

		// One cache shared by every automaton of the round.
		cached, err := NewCachedEngine(DefaultCacheConfig(), v.Fingerprint(), NewTrieEngine(toktrie.Build(v)))
		require.NoError(t, err)

		for set := 0; set < 5; set++ {
			literals := make([]string, 2+rng.IntN(5))
			for i := range literals {
				literals[i] = randomString(6)
			}
			for perm := 0; perm < 4; perm++ {
				ordering := append([]string{}, literals...)
				rng.Shuffle(len(ordering), func(i, j int) { ordering[i], ordering[j] = ordering[j], ordering[i] })
				if perm%2 == 1 {
					ordering = append(ordering, ordering[0])
				}
				a, err := automaton.NewLiteralSetFromStrings(ordering)
				require.NoError(t, err)

				for _, state := range reachableStates(a, alphabet) {
					want, _ := brute.AllowedTokens(a, state)
					got, _ := cached.AllowedTokens(a, state)
					require.Equal(t, want, got, "round %d, literals %q, state %d", round, ordering, state)
				}
			}
		}
		cached.Close()
	}
}

func TestCachedEngine_BypassWithoutFingerprint(t *testing.T) {
	a := opaque{Automaton: mustLiterals(t, "ab")}
	next := &MockEngine{}
	next.On("AllowedTokens", a, a.Start()).Return(sets.New[uint32](0), Stats{}).Twice()

	cached, err := NewCachedEngine(nil, 0, next)
	require.NoError(t, err)
	t.Cleanup(cached.Close)

	for i := 0; i < 2; i++ {
		_, stats := cached.AllowedTokens(a, a.Start())
		assert.False(t, stats.CacheHit)
	}
	next.AssertExpectations(t)
}

func TestCachedEngine_Size(t *testing.T) {
	cached, err := NewCachedEngine(&CacheConfig{Size: "1MiB"}, 0, &MockEngine{})
	require.NoError(t, err)
	t.Cleanup(cached.Close)
	assert.Equal(t, int64(1<<20), cached.MaxCost())

	_, err = NewCachedEngine(&CacheConfig{Size: "not-a-size"}, 0, &MockEngine{})
	require.Error(t, err)
}
