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

package session

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// AutomatonWalker walks an automaton from its start state. It is terminal
// whenever the current state accepts.
type AutomatonWalker struct {
	history
	automaton automaton.Automaton
	spec      automaton.Spec
	engine    bias.Engine
	state     automaton.State
}

var _ Walker = &AutomatonWalker{}

// NewAutomatonWalker creates a walker at the start state of a. spec is only
// recorded in snapshots; engine must be built over v.
func NewAutomatonWalker(ctx context.Context, a automaton.Automaton, spec automaton.Spec, engine bias.Engine,
	v *vocab.Vocabulary,
) *AutomatonWalker {
	return &AutomatonWalker{
		history: history{
			vocab:  v,
			logger: klog.FromContext(ctx).WithName("session.AutomatonWalker"),
		},
		automaton: a,
		spec:      spec,
		engine:    engine,
		state:     a.Start(),
	}
}

// Mode returns ModeAutomaton.
func (w *AutomatonWalker) Mode() Mode {
	return ModeAutomaton
}

// State returns the cursor.
func (w *AutomatonWalker) State() automaton.State {
	return w.state
}

// AllowedNow returns the tokens whose bytes keep the automaton alive from the
// current state.
func (w *AutomatonWalker) AllowedNow() sets.Set[uint32] {
	allowed, _ := w.engine.AllowedTokens(w.automaton, w.state)
	return allowed
}

// Consume steps the automaton over the token's bytes, or resets when the
// token is unknown, not allowed, or leads to a dead end.
func (w *AutomatonWalker) Consume(tokenID uint32) Result {
	return w.consume(tokenID, true)
}

func (w *AutomatonWalker) consume(tokenID uint32, checkDeadEnd bool) Result {
	tok, ok := w.vocab.LookupToken(tokenID)
	if !ok {
		return w.resetWith(tokenID, ReasonUnknownToken)
	}
	if w.vocab.IsShadowed(tokenID) {
		return w.resetWith(tokenID, ReasonNotAllowed)
	}

	next := automaton.StepBytes(w.automaton, w.state, tok)
	if automaton.IsDead(next) {
		return w.resetWith(tokenID, ReasonNotAllowed)
	}

	w.state = next
	res := w.advanced(tokenID)
	if checkDeadEnd && !w.Terminal() && w.AllowedNow().Len() == 0 {
		return w.resetWith(tokenID, ReasonDeadEnd)
	}
	return res
}

func (w *AutomatonWalker) resetWith(tokenID uint32, reason ResetReason) Result {
	w.state = w.automaton.Start()
	return w.reset(tokenID, reason)
}

// Terminal reports whether the current state accepts.
func (w *AutomatonWalker) Terminal() bool {
	return w.automaton.IsAccept(w.state)
}

// Reset returns to the start state and clears the output.
func (w *AutomatonWalker) Reset() {
	w.state = w.automaton.Start()
	w.output = w.output[:0]
}

// Snapshot records the pattern and the output; the state is informational.
func (w *AutomatonWalker) Snapshot() *Snapshot {
	return &Snapshot{
		Mode:      ModeAutomaton,
		Automaton: w.spec,
		Output:    w.Output(),
		Cursor:    uint64(w.state),
	}
}
