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

	"github.com/llm-d/llm-d-oraculum/pkg/lattice"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// LatticeWalker walks a segmentation lattice from position 0. It is terminal
// once the whole input is spelled.
type LatticeWalker struct {
	history
	lattice *lattice.Lattice
	pos     int
}

var _ Walker = &LatticeWalker{}

// NewLatticeWalker creates a walker at position 0 of l. The lattice must have
// been built over v.
func NewLatticeWalker(ctx context.Context, l *lattice.Lattice, v *vocab.Vocabulary) *LatticeWalker {
	return &LatticeWalker{
		history: history{
			vocab:  v,
			logger: klog.FromContext(ctx).WithName("session.LatticeWalker"),
		},
		lattice: l,
	}
}

// Mode returns ModeLattice.
func (w *LatticeWalker) Mode() Mode {
	return ModeLattice
}

// Position returns the cursor.
func (w *LatticeWalker) Position() int {
	return w.pos
}

// Lattice returns the walked lattice.
func (w *LatticeWalker) Lattice() *lattice.Lattice {
	return w.lattice
}

// AllowedNow returns the labels of the edges leaving the current position.
func (w *LatticeWalker) AllowedNow() sets.Set[uint32] {
	allowed := sets.New[uint32]()
	for _, r := range w.lattice.RoutesFrom(w.pos) {
		allowed.Insert(r.TokenID)
	}
	return allowed
}

// Consume follows the edge labeled tokenID, or resets when there is none or
// the edge leads to a dead end.
func (w *LatticeWalker) Consume(tokenID uint32) Result {
	return w.consume(tokenID, true)
}

func (w *LatticeWalker) consume(tokenID uint32, checkDeadEnd bool) Result {
	for _, r := range w.lattice.RoutesFrom(w.pos) {
		if r.TokenID != tokenID {
			continue
		}
		w.pos = r.Target
		res := w.advanced(tokenID)
		if checkDeadEnd && !w.Terminal() && len(w.lattice.RoutesFrom(w.pos)) == 0 {
			return w.resetWith(tokenID, ReasonDeadEnd)
		}
		return res
	}

	if !w.vocab.Contains(tokenID) {
		return w.resetWith(tokenID, ReasonUnknownToken)
	}
	return w.resetWith(tokenID, ReasonNotAllowed)
}

func (w *LatticeWalker) resetWith(tokenID uint32, reason ResetReason) Result {
	w.pos = 0
	return w.reset(tokenID, reason)
}

// Terminal reports whether the whole input is spelled.
func (w *LatticeWalker) Terminal() bool {
	return w.pos == w.lattice.Len()
}

// Reset returns to position 0 and clears the output.
func (w *LatticeWalker) Reset() {
	w.pos = 0
	w.output = w.output[:0]
}

// Snapshot records the input and the output; the position is informational.
func (w *LatticeWalker) Snapshot() *Snapshot {
	return &Snapshot{
		Mode:   ModeLattice,
		Input:  w.lattice.Input(),
		Output: w.Output(),
		Cursor: uint64(w.pos), // #nosec G115
	}
}
