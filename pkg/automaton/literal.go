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

package automaton

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxLiteralStates bounds the size of a compiled literal set.
const maxLiteralStates = 1 << 20

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

// LiteralSet accepts exactly the strings of a finite set.
//
// It is compiled into a trie-shaped DFA: state 1 is the root, every other
// state is the prefix of at least one literal, so a state is dead as soon as
// no literal continues with the consumed bytes.
type LiteralSet struct {
	literals [][]byte
	trans    []map[byte]State // indexed by state, trans[DeadState] is nil
	accept   []bool
}

var _ Automaton = &LiteralSet{}

// ParseAlternation splits a `a|b|c` pattern into its literals. A backslash
// escapes the next byte, so `\|` and `\\` are literal.
func ParseAlternation(pattern string) ([]string, error) {
	var (
		literals []string
		current  strings.Builder
	)

	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '\\':
			if i+1 == len(pattern) {
				return nil, fmt.Errorf("%w: dangling escape at end of %q", ErrInvalidPattern, pattern)
			}
			i++
			current.WriteByte(pattern[i])
		case '|':
			literals = append(literals, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	literals = append(literals, current.String())

	for idx, lit := range literals {
		if lit == "" {
			return nil, fmt.Errorf("%w: empty alternative %d in %q", ErrInvalidPattern, idx, pattern)
		}
	}
	return literals, nil
}

// NewLiteralSet compiles an alternation pattern.
func NewLiteralSet(pattern string) (*LiteralSet, error) {
	literals, err := ParseAlternation(pattern)
	if err != nil {
		return nil, err
	}
	return NewLiteralSetFromStrings(literals)
}

// NewLiteralSetFromStrings compiles the given literals. States are numbered
// over the sorted, de-duplicated literals, so every ordering of the same set
// yields the same automaton.
func NewLiteralSetFromStrings(literals []string) (*LiteralSet, error) {
	if len(literals) == 0 {
		return nil, fmt.Errorf("%w: no literals", ErrInvalidPattern)
	}
	literals = slices.Compact(slices.Sorted(slices.Values(literals)))

	a := &LiteralSet{
		trans:  []map[byte]State{nil, {}},
		accept: []bool{false, false},
	}

	for _, lit := range literals {
		if lit == "" {
			return nil, fmt.Errorf("%w: empty literal", ErrInvalidPattern)
		}

		state := a.Start()
		for i := 0; i < len(lit); i++ {
			next, ok := a.trans[state][lit[i]]
			if !ok {
				if len(a.trans) >= maxLiteralStates {
					return nil, fmt.Errorf("%w: more than %d states", ErrInvalidPattern, maxLiteralStates)
				}
				next = State(len(a.trans)) // #nosec G115
				a.trans = append(a.trans, map[byte]State{})
				a.accept = append(a.accept, false)
				a.trans[state][lit[i]] = next
			}
			state = next
		}
		if !a.accept[state] {
			a.accept[state] = true
			a.literals = append(a.literals, []byte(lit))
		}
	}

	return a, nil
}

func (a *LiteralSet) Start() State {
	return 1
}

func (a *LiteralSet) Step(state State, b byte) State {
	if state == DeadState || int(state) >= len(a.trans) {
		return DeadState
	}
	return a.trans[state][b] // missing edge yields DeadState
}

func (a *LiteralSet) IsAccept(state State) bool {
	return state != DeadState && int(state) < len(a.accept) && a.accept[state]
}

// NumStates returns the number of live states.
func (a *LiteralSet) NumStates() int {
	return len(a.trans) - 1
}

// Literals returns the distinct literals in byte order.
func (a *LiteralSet) Literals() []string {
	out := make([]string, len(a.literals))
	for i, lit := range a.literals {
		out[i] = string(lit)
	}
	return out
}

// Fingerprint identifies the automaton by its literal set, which also fixes
// its state numbering.
func (a *LiteralSet) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(KindLiterals)
	for _, lit := range a.literals {
		_ = binary.Write(d, binary.LittleEndian, uint32(len(lit))) // #nosec G115
		_, _ = d.Write(lit)
	}
	return d.Sum64()
}
