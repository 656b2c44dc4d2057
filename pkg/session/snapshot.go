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
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
)

// Snapshot is the persistent form of a walker. Restoring replays Output from
// the initial cursor instead of trusting Cursor, which is informational.
type Snapshot struct {
	_         struct{} `msgpack:",array"`
	Mode      Mode
	Input     []byte         // lattice mode
	Automaton automaton.Spec // automaton mode
	Output    []uint32
	Cursor    uint64
}

// Marshal encodes the snapshot with msgpack.
func (s *Snapshot) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalSnapshot decodes a snapshot produced by Marshal.
func UnmarshalSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	switch s.Mode {
	case ModeLattice, ModeAutomaton:
	default:
		return nil, fmt.Errorf("unknown session mode %q", s.Mode)
	}
	return &s, nil
}
