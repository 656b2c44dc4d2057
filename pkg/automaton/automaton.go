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

// Package automaton defines the byte-level automata that constrain which
// continuations are legal.
package automaton

// State is an opaque automaton state. States are plain values: stepping never
// mutates the automaton, so any number of walkers may share one.
type State uint32

// DeadState is the sink state from which no accepting state is reachable.
// Stepping from it always yields DeadState.
const DeadState State = 0

// Automaton is a deterministic byte automaton.
//
// Implementations must be immutable after construction and safe for
// concurrent use.
type Automaton interface {
	// Start returns the initial state.
	Start() State

	// Step returns the next state for the given input byte.
	// Returns DeadState if no accepting state remains reachable.
	Step(state State, b byte) State

	// IsAccept returns true if the state is an accepting state.
	IsAccept(state State) bool
}

// Fingerprinter is implemented by automata that can be identified across
// instances, e.g. for caching per-state results.
type Fingerprinter interface {
	Fingerprint() uint64
}

// IsDead reports whether the state can never reach acceptance.
func IsDead(state State) bool {
	return state == DeadState
}

// StepBytes feeds b through the automaton, stopping early once dead.
func StepBytes(a Automaton, state State, b []byte) State {
	for _, c := range b {
		if state == DeadState {
			return DeadState
		}
		state = a.Step(state, c)
	}
	return state
}

// Matches reports whether the automaton accepts b from its start state.
func Matches(a Automaton, b []byte) bool {
	state := StepBytes(a, a.Start(), b)
	return state != DeadState && a.IsAccept(state)
}
