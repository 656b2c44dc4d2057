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
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
)

// TrieEngine walks the token trie alongside the automaton. Tokens sharing a
// prefix share the transitions over it, and a prefix that kills the automaton
// removes every token below it in one step.
type TrieEngine struct {
	trie *toktrie.Trie
}

var _ Engine = &TrieEngine{}

// NewTrieEngine creates an engine over the given trie.
func NewTrieEngine(trie *toktrie.Trie) *TrieEngine {
	return &TrieEngine{trie: trie}
}

// frame is one level of the depth-first descent.
type frame struct {
	node  toktrie.NodeID
	state automaton.State
	next  int
}

// AllowedTokens implements Engine.
func (e *TrieEngine) AllowedTokens(a automaton.Automaton, state automaton.State) (sets.Set[uint32], Stats) {
	allowed := sets.New[uint32]()
	var stats Stats
	if automaton.IsDead(state) {
		return allowed, stats
	}

	stack := make([]frame, 1, e.trie.MaxDepth()+1)
	stack[0] = frame{node: e.trie.Root(), state: state}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := e.trie.Children(top.node)
		if top.next >= len(edges) {
			stack = stack[:len(stack)-1]
			continue
		}

		edge := edges[top.next]
		top.next++

		next := a.Step(top.state, edge.Byte)
		stats.Transitions++
		if automaton.IsDead(next) {
			stats.Pruned++
			continue
		}

		if id, ok := e.trie.Token(edge.Child); ok {
			allowed.Insert(id)
		}
		stack = append(stack, frame{node: edge.Child, state: next})
	}

	return allowed, stats
}
