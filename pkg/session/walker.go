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

// Package session walks a constraint one token at a time: it reports which
// tokens may come next, consumes the chosen one and resets to the initial
// cursor whenever the walk cannot continue.
package session

import (
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/metrics"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// Mode tells what a walker's cursor ranges over.
type Mode string

const (
	// ModeLattice walks the positions of a segmentation lattice.
	ModeLattice Mode = "lattice"
	// ModeAutomaton walks the states of an automaton.
	ModeAutomaton Mode = "automaton"
)

// Outcome of a Consume call.
type Outcome int

const (
	// Advanced means the token was appended to the output.
	Advanced Outcome = iota
	// Reset means the walker returned to its initial cursor with an empty
	// output.
	Reset
)

// ResetReason tells why a walker reset.
type ResetReason int

const (
	ReasonNone ResetReason = iota
	// ReasonUnknownToken is an id outside the vocabulary.
	ReasonUnknownToken
	// ReasonNotAllowed is a known token outside the allowed set.
	ReasonNotAllowed
	// ReasonDeadEnd is a consumed token that left no continuation from a
	// non-terminal cursor.
	ReasonDeadEnd
)

func (r ResetReason) String() string {
	switch r {
	case ReasonUnknownToken:
		return metrics.ReasonUnknownToken
	case ReasonNotAllowed:
		return metrics.ReasonNotAllowed
	case ReasonDeadEnd:
		return metrics.ReasonDeadEnd
	default:
		return "none"
	}
}

// Result reports the effect of Consume.
type Result struct {
	Outcome Outcome
	Reason  ResetReason
}

// Ok reports whether the token was consumed.
func (r Result) Ok() bool {
	return r.Outcome == Advanced
}

func (r Result) String() string {
	if r.Ok() {
		return "advanced"
	}
	return "reset: " + r.Reason.String()
}

// Walker is a single constrained generation session.
//
// A walker is not safe for concurrent use; callers serialize access to one
// session.
type Walker interface {
	Mode() Mode
	// AllowedNow returns the ids that Consume would accept.
	AllowedNow() sets.Set[uint32]
	// Consume advances on an allowed token and resets on anything else.
	Consume(tokenID uint32) Result
	// Output returns the consumed ids since the last reset.
	Output() []uint32
	// Text returns the bytes of Output.
	Text() []byte
	// Terminal reports whether the walk may stop here.
	Terminal() bool
	// Reset returns to the initial cursor and clears the output.
	Reset()
	// Snapshot captures the walker for a later Restore.
	Snapshot() *Snapshot
}

// history is the output bookkeeping shared by the walkers.
type history struct {
	vocab  *vocab.Vocabulary
	output []uint32
	logger klog.Logger
}

// Output returns a copy of the accepted tokens.
func (h *history) Output() []uint32 {
	return slices.Clone(h.output)
}

// Text returns the bytes spelled by the output.
func (h *history) Text() []byte {
	var text []byte
	for _, id := range h.output {
		tok, _ := h.vocab.LookupToken(id)
		text = append(text, tok...)
	}
	return text
}

func (h *history) advanced(tokenID uint32) Result {
	h.output = append(h.output, tokenID)
	metrics.SessionConsumes.Inc()
	return Result{Outcome: Advanced}
}

// reset clears the output and reports reason; the caller resets the cursor.
func (h *history) reset(tokenID uint32, reason ResetReason) Result {
	h.logger.V(logging.DEBUG).Info("resetting session", "token", tokenID, "reason", reason.String(),
		"discarded", len(h.output))
	h.output = h.output[:0]
	metrics.SessionResets.WithLabelValues(reason.String()).Inc()
	return Result{Outcome: Reset, Reason: reason}
}

// replayer is implemented by the walkers of this package.
type replayer interface {
	consume(tokenID uint32, checkDeadEnd bool) Result
}

// Replay consumes tokens in order and reports whether all were accepted. On
// failure the walker is left reset.
//
// Only the final cursor is checked for a dead end: a cursor from which the
// next token advances has a continuation.
func Replay(w Walker, tokens []uint32) bool {
	r, ok := w.(replayer)
	for i, id := range tokens {
		var res Result
		if ok {
			res = r.consume(id, i == len(tokens)-1)
		} else {
			res = w.Consume(id)
		}
		if !res.Ok() {
			return false
		}
	}
	return true
}
