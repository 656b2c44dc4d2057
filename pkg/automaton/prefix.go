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

import "github.com/cespare/xxhash/v2"

// Prefix accepts all strings starting with a given prefix.
//
// States: 1..len(prefix)+1, where state len(prefix)+1 is the accepting state
// that loops on any byte.
type Prefix struct {
	prefix []byte
}

var _ Automaton = &Prefix{}

// NewPrefix creates an automaton that accepts strings with the given prefix.
func NewPrefix(prefix []byte) *Prefix {
	return &Prefix{prefix: append([]byte(nil), prefix...)}
}

func (a *Prefix) Start() State {
	return 1 // state 1 = position 0
}

func (a *Prefix) Step(state State, b byte) State {
	if state == DeadState {
		return DeadState
	}
	pos := int(state) - 1
	if pos < len(a.prefix) {
		if b == a.prefix[pos] {
			return State(pos + 2) // #nosec G115
		}
		return DeadState
	}
	return state
}

func (a *Prefix) IsAccept(state State) bool {
	if state == DeadState {
		return false
	}
	return int(state)-1 >= len(a.prefix)
}

// Fingerprint identifies the automaton by its prefix.
func (a *Prefix) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(KindPrefix)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(a.prefix)
	return d.Sum64()
}
