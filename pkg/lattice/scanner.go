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
	"fmt"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// Supported scanner names.
const (
	ScannerAhoCorasick = "aho-corasick"
	ScannerTrie        = "trie"
)

// Match is one occurrence of a vocabulary token in an input: the bytes
// input[Start:End] are the bytes of TokenID.
type Match struct {
	Start   int
	End     int
	TokenID uint32
}

// Scanner reports every occurrence of every vocabulary token in an input,
// overlapping ones included. Order is not significant.
type Scanner interface {
	Scan(input []byte) []Match
}

// NewScanner creates the named scanner over the vocabulary.
func NewScanner(name string, v *vocab.Vocabulary, trie *toktrie.Trie) (Scanner, error) {
	switch name {
	case "", ScannerAhoCorasick:
		return NewAhoCorasickScanner(v), nil
	case ScannerTrie:
		return NewTrieScanner(trie), nil
	default:
		return nil, fmt.Errorf("unknown scanner %q", name)
	}
}

// AhoCorasickScanner finds all occurrences in a single pass over the input
// with an Aho-Corasick automaton built from the vocabulary.
type AhoCorasickScanner struct {
	ac *ahocorasick.AhoCorasick
	// ids maps pattern indexes back to token ids.
	ids []uint32
}

var _ Scanner = &AhoCorasickScanner{}

// NewAhoCorasickScanner compiles the non-shadowed vocabulary entries into an
// automaton. An empty vocabulary yields a scanner that never matches.
func NewAhoCorasickScanner(v *vocab.Vocabulary) *AhoCorasickScanner {
	patterns := make([]string, 0, v.Len())
	ids := make([]uint32, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		tok := v.At(i)
		if v.IsShadowed(tok.ID) {
			continue
		}
		patterns = append(patterns, string(tok.Bytes))
		ids = append(ids, tok.ID)
	}

	s := &AhoCorasickScanner{ids: ids}
	if len(patterns) == 0 {
		return s
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		MatchKind: ahocorasick.StandardMatch,
		DFA:       true,
	})
	ac := builder.Build(patterns)
	s.ac = &ac
	return s
}

// Scan implements Scanner.
func (s *AhoCorasickScanner) Scan(input []byte) []Match {
	if s.ac == nil || len(input) == 0 {
		return nil
	}

	var matches []Match
	iter := s.ac.IterOverlapping(string(input))
	for next := iter.Next(); next != nil; next = iter.Next() {
		matches = append(matches, Match{
			Start:   next.Start(),
			End:     next.End(),
			TokenID: s.ids[next.Pattern()],
		})
	}
	return matches
}

// TrieScanner walks the token trie from every start position.
type TrieScanner struct {
	trie *toktrie.Trie
}

var _ Scanner = &TrieScanner{}

// NewTrieScanner creates a scanner over the given trie.
func NewTrieScanner(trie *toktrie.Trie) *TrieScanner {
	return &TrieScanner{trie: trie}
}

// Scan implements Scanner.
func (s *TrieScanner) Scan(input []byte) []Match {
	var matches []Match
	for start := range input {
		n := s.trie.Root()
		for end := start; end < len(input); end++ {
			next, ok := s.trie.Child(n, input[end])
			if !ok {
				break
			}
			n = next
			if id, terminal := s.trie.Token(n); terminal {
				matches = append(matches, Match{Start: start, End: end + 1, TokenID: id})
			}
		}
	}
	return matches
}

// sound reports whether m is an exact occurrence in input.
func sound(m Match, input []byte, v *vocab.Vocabulary) bool {
	if m.Start < 0 || m.End <= m.Start || m.End > len(input) {
		return false
	}
	tok, ok := v.LookupToken(m.TokenID)
	return ok && !v.IsShadowed(m.TokenID) && bytes.Equal(tok, input[m.Start:m.End])
}
