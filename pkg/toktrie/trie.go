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

// Package toktrie provides a static byte-level prefix tree over a vocabulary.
package toktrie

import (
	"slices"

	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// NodeID addresses a node of a Trie.
type NodeID int32

// rootID is always the first node.
const rootID NodeID = 0

// Edge is a labeled link to a child node.
type Edge struct {
	Byte  byte
	Child NodeID
}

type node struct {
	firstEdge int32
	numEdges  int32
	tokenID   uint32
	terminal  bool
}

// Trie is an immutable prefix tree over token bytes.
//
// Nodes and edges live in two flat arenas; the children of a node occupy a
// contiguous, byte-sorted range of the edge arena, so traversal order does not
// depend on map iteration. A node is terminal when a token's bytes end there.
// When several ids share the same bytes the first inserted one is kept.
//
// A Trie is safe for concurrent use.
type Trie struct {
	nodes     []node
	edges     []Edge
	numTokens int
	maxDepth  int
	shadowed  []uint32
}

type buildNode struct {
	children map[byte]*buildNode
	tokenID  uint32
	terminal bool
}

// Build inserts every vocabulary entry in insertion order.
func Build(v *vocab.Vocabulary) *Trie {
	root := &buildNode{}
	t := &Trie{}

	for i := 0; i < v.Len(); i++ {
		tok := v.At(i)
		n := root
		for _, b := range tok.Bytes {
			if n.children == nil {
				n.children = make(map[byte]*buildNode)
			}
			child, ok := n.children[b]
			if !ok {
				child = &buildNode{}
				n.children[b] = child
			}
			n = child
		}

		if n.terminal {
			t.shadowed = append(t.shadowed, tok.ID)
			continue
		}
		n.terminal = true
		n.tokenID = tok.ID
		t.numTokens++
		t.maxDepth = max(t.maxDepth, len(tok.Bytes))
	}

	t.freeze(root)
	slices.Sort(t.shadowed)
	return t
}

// freeze lays the build nodes out breadth-first into the arenas.
func (t *Trie) freeze(root *buildNode) {
	queue := []*buildNode{root}
	t.nodes = append(t.nodes, node{})

	for head := 0; head < len(queue); head++ {
		bn := queue[head]
		id := NodeID(head) // #nosec G115

		keys := make([]byte, 0, len(bn.children))
		for b := range bn.children {
			keys = append(keys, b)
		}
		slices.Sort(keys)

		n := &t.nodes[id]
		n.terminal = bn.terminal
		n.tokenID = bn.tokenID
		n.firstEdge = int32(len(t.edges)) // #nosec G115
		n.numEdges = int32(len(keys))     // #nosec G115

		for _, b := range keys {
			child := NodeID(len(queue)) // #nosec G115
			queue = append(queue, bn.children[b])
			t.nodes = append(t.nodes, node{})
			t.edges = append(t.edges, Edge{Byte: b, Child: child})
		}
	}
}

// Root returns the root node. The root is never terminal.
func (t *Trie) Root() NodeID {
	return rootID
}

// Children returns the byte-sorted outgoing edges of n. The returned slice
// must not be modified.
func (t *Trie) Children(n NodeID) []Edge {
	nd := t.nodes[n]
	return t.edges[nd.firstEdge : nd.firstEdge+nd.numEdges]
}

// Token returns the token id ending at n, if any.
func (t *Trie) Token(n NodeID) (uint32, bool) {
	nd := t.nodes[n]
	return nd.tokenID, nd.terminal
}

// Child follows the edge labeled b out of n.
func (t *Trie) Child(n NodeID, b byte) (NodeID, bool) {
	edges := t.Children(n)
	idx, found := slices.BinarySearchFunc(edges, b, func(e Edge, target byte) int {
		return int(e.Byte) - int(target)
	})
	if !found {
		return 0, false
	}
	return edges[idx].Child, true
}

// Lookup returns the id stored for the exact byte string.
func (t *Trie) Lookup(b []byte) (uint32, bool) {
	n := t.Root()
	for _, c := range b {
		next, ok := t.Child(n, c)
		if !ok {
			return 0, false
		}
		n = next
	}
	return t.Token(n)
}

// NumNodes returns the number of nodes, root included.
func (t *Trie) NumNodes() int {
	return len(t.nodes)
}

// NumTokens returns the number of terminal nodes.
func (t *Trie) NumTokens() int {
	return t.numTokens
}

// MaxDepth returns the length of the longest token.
func (t *Trie) MaxDepth() int {
	return t.maxDepth
}

// Shadowed returns the ids that were not inserted because an earlier id had
// the same bytes.
func (t *Trie) Shadowed() []uint32 {
	return slices.Clone(t.shadowed)
}

// Walk visits every token in byte-lexicographic order. The path slice is
// reused between calls; fn must copy it to retain it. Walk stops early when
// fn returns false.
func (t *Trie) Walk(fn func(path []byte, id uint32) bool) {
	type frame struct {
		node NodeID
		next int32
	}

	path := make([]byte, 0, t.maxDepth)
	stack := make([]frame, 1, t.maxDepth+1)
	stack[0] = frame{node: t.Root()}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := t.Children(top.node)
		if int(top.next) >= len(edges) {
			stack = stack[:len(stack)-1]
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			continue
		}

		e := edges[top.next]
		top.next++
		path = append(path, e.Byte)
		if id, ok := t.Token(e.Child); ok && !fn(path, id) {
			return
		}
		stack = append(stack, frame{node: e.Child})
	}
}
