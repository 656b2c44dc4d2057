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

// Package lattice builds segmentation lattices: every way of writing an input
// as a concatenation of vocabulary tokens.
package lattice

import (
	"bytes"
	"cmp"
	"iter"
	"math"
	"slices"

	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// noEdge terminates an adjacency list.
const noEdge int32 = -1

// Route is an outgoing lattice edge: consuming TokenID moves to Target.
type Route struct {
	TokenID uint32
	Target  int
}

// Span is a lattice edge with both endpoints.
type Span struct {
	Start   int
	End     int
	TokenID uint32
}

type edge struct {
	tokenID uint32
	target  int32
	next    int32
}

// Lattice is an immutable DAG over the positions 0..Len() of an input. An
// edge start->end labeled t exists exactly when the bytes of t equal
// input[start:end].
//
// Edges live in an arena and each position holds the index of its first
// outgoing edge, each edge the index of its successor. Edges leaving a
// position are ordered by token id.
type Lattice struct {
	input []byte
	vocab *vocab.Vocabulary
	edges []edge
	heads []int32
	// reach[p] is set when the end of the input is reachable from p.
	reach []bool
}

// Build records one edge per sound match reported by the scanner. Matches
// whose bytes do not equal the input span are dropped.
func Build(input []byte, v *vocab.Vocabulary, scanner Scanner) *Lattice {
	l := &Lattice{
		input: slices.Clone(input),
		vocab: v,
		heads: make([]int32, len(input)+1),
		reach: make([]bool, len(input)+1),
	}
	for i := range l.heads {
		l.heads[i] = noEdge
	}

	matches := slices.DeleteFunc(scanner.Scan(l.input), func(m Match) bool {
		return !sound(m, l.input, v)
	})
	slices.SortFunc(matches, func(a, b Match) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.TokenID, b.TokenID))
	})
	matches = slices.Compact(matches)

	// Insert in reverse so that prepending leaves each list in order.
	l.edges = make([]edge, 0, len(matches))
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		l.edges = append(l.edges, edge{
			tokenID: m.TokenID,
			target:  int32(m.End),     // #nosec G115
			next:    l.heads[m.Start], // previous head
		})
		l.heads[m.Start] = int32(len(l.edges) - 1) // #nosec G115
	}

	l.reach[len(input)] = true
	for p := len(input) - 1; p >= 0; p-- {
		for e := l.heads[p]; e != noEdge; e = l.edges[e].next {
			if l.reach[l.edges[e].target] {
				l.reach[p] = true
				break
			}
		}
	}

	return l
}

// Len returns the length of the input; positions range over 0..Len().
func (l *Lattice) Len() int {
	return len(l.input)
}

// Input returns the input bytes. The slice must not be modified.
func (l *Lattice) Input() []byte {
	return l.input
}

// NumEdges returns the number of edges.
func (l *Lattice) NumEdges() int {
	return len(l.edges)
}

// RoutesFrom returns the edges leaving pos in insertion order. Out of range
// positions have no routes.
func (l *Lattice) RoutesFrom(pos int) []Route {
	if pos < 0 || pos >= len(l.heads) {
		return nil
	}
	var routes []Route
	for e := l.heads[pos]; e != noEdge; e = l.edges[e].next {
		routes = append(routes, Route{TokenID: l.edges[e].tokenID, Target: int(l.edges[e].target)})
	}
	return routes
}

// SortedRoutesFrom returns the edges leaving pos ordered by token bytes, then
// by id.
func (l *Lattice) SortedRoutesFrom(pos int) []Route {
	routes := l.RoutesFrom(pos)
	slices.SortStableFunc(routes, func(a, b Route) int {
		ta, _ := l.vocab.LookupToken(a.TokenID)
		tb, _ := l.vocab.LookupToken(b.TokenID)
		return cmp.Or(bytes.Compare(ta, tb), cmp.Compare(a.TokenID, b.TokenID))
	})
	return routes
}

// Edges returns all edges ordered by start position, then token id.
func (l *Lattice) Edges() []Span {
	spans := make([]Span, 0, len(l.edges))
	for p := range l.heads {
		for e := l.heads[p]; e != noEdge; e = l.edges[e].next {
			spans = append(spans, Span{Start: p, End: int(l.edges[e].target), TokenID: l.edges[e].tokenID})
		}
	}
	return spans
}

// Complete reports whether at least one full segmentation exists.
func (l *Lattice) Complete() bool {
	return l.reach[0]
}

// Paths lazily enumerates every token sequence spelling the whole input,
// depth first in route order. Each yielded slice is a fresh copy. The
// sequence can be iterated any number of times.
func (l *Lattice) Paths() iter.Seq[[]uint32] {
	return func(yield func([]uint32) bool) {
		if !l.reach[0] {
			return
		}

		type frame struct {
			pos  int
			next int32
		}

		stack := []frame{{pos: 0, next: l.heads[0]}}
		var path []uint32
		pop := func() {
			stack = stack[:len(stack)-1]
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.pos == len(l.input) {
				if !yield(append([]uint32{}, path...)) {
					return
				}
				pop()
				continue
			}

			e := top.next
			for e != noEdge && !l.reach[l.edges[e].target] {
				e = l.edges[e].next // cannot complete
			}
			if e == noEdge {
				pop()
				continue
			}

			top.next = l.edges[e].next
			target := int(l.edges[e].target)
			path = append(path, l.edges[e].tokenID)
			stack = append(stack, frame{pos: target, next: l.heads[target]})
		}
	}
}

// CountPaths returns the number of full segmentations, saturating at
// math.MaxUint64.
func (l *Lattice) CountPaths() uint64 {
	counts := make([]uint64, len(l.heads))
	counts[len(l.input)] = 1
	for p := len(l.input) - 1; p >= 0; p-- {
		var total uint64
		for e := l.heads[p]; e != noEdge; e = l.edges[e].next {
			c := counts[l.edges[e].target]
			if total > math.MaxUint64-c {
				total = math.MaxUint64
				break
			}
			total += c
		}
		counts[p] = total
	}
	return counts[0]
}
