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
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// BruteForce tests every token independently. It is the reference the trie
// engine is checked against; shadowed ids are skipped like in the trie.
type BruteForce struct {
	vocab *vocab.Vocabulary
}

var _ Engine = &BruteForce{}

// NewBruteForce creates a brute-force engine over the vocabulary.
func NewBruteForce(v *vocab.Vocabulary) *BruteForce {
	return &BruteForce{vocab: v}
}

// AllowedTokens implements Engine.
func (e *BruteForce) AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats) {
	allowed := sets.New[uint32]()
	var stats Stats
	if automaton.IsDead(state) {
		return allowed, stats
	}

	for i := 0; i < e.vocab.Len(); i++ {
		tok := e.vocab.At(i)
		if e.vocab.IsShadowed(tok.ID) {
			continue
		}

		s := state
		for _, b := range tok.Bytes {
			s = a.Step(s, b)
			stats.Transitions++
			if automaton.IsDead(s) {
				break
			}
		}
		if !automaton.IsDead(s) {
			allowed.Insert(tok.ID)
		}
	}

	return allowed, stats
}
