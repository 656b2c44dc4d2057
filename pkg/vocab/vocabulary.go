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

// Package vocab holds the immutable token vocabulary shared by every other
// component: the id<->bytes table, its line-oriented file format and a
// deterministic fingerprint used to namespace caches.
package vocab

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrDuplicateID is returned when two entries carry the same token id.
	ErrDuplicateID = errors.New("duplicate token id")
	// ErrEmptyToken is returned for entries with an empty byte string.
	ErrEmptyToken = errors.New("empty token")
)

// Token is a single vocabulary entry.
type Token struct {
	ID    uint32
	Bytes []byte
}

// Vocabulary is a frozen id<->bytes table.
//
// Entries keep their insertion order, addressed by index 0..Len()-1. Two
// entries may carry the same bytes under different ids: the first inserted id
// owns the byte string and the later ones are shadowed. Shadowed ids can
// still be resolved to their bytes but are never offered as continuations.
//
// A Vocabulary is read-only after New and safe for concurrent use. Byte
// slices returned by its methods must not be modified.
type Vocabulary struct {
	tokens   []Token // insertion order
	byID     []Token // sorted by id
	idOf     map[string]uint32
	indexOf  map[uint32]int
	shadowed map[uint32]struct{}
	maxLen   int

	fingerprint uint64
}

// New freezes the given entries into a Vocabulary. The entries are copied.
func New(entries []Token) (*Vocabulary, error) {
	v := &Vocabulary{
		tokens:   make([]Token, 0, len(entries)),
		idOf:     make(map[string]uint32, len(entries)),
		indexOf:  make(map[uint32]int, len(entries)),
		shadowed: make(map[uint32]struct{}),
	}

	for i, entry := range entries {
		if len(entry.Bytes) == 0 {
			return nil, fmt.Errorf("entry %d (id %d): %w", i, entry.ID, ErrEmptyToken)
		}
		if _, found := v.indexOf[entry.ID]; found {
			return nil, fmt.Errorf("entry %d: %w: %d", i, ErrDuplicateID, entry.ID)
		}

		tok := Token{ID: entry.ID, Bytes: slices.Clone(entry.Bytes)}
		v.indexOf[tok.ID] = len(v.tokens)
		v.tokens = append(v.tokens, tok)

		if _, taken := v.idOf[string(tok.Bytes)]; taken {
			v.shadowed[tok.ID] = struct{}{}
		} else {
			v.idOf[string(tok.Bytes)] = tok.ID
		}
		v.maxLen = max(v.maxLen, len(tok.Bytes))
	}

	v.byID = slices.Clone(v.tokens)
	slices.SortFunc(v.byID, func(a, b Token) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	fp, err := fingerprint(v.byID)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint vocabulary: %w", err)
	}
	v.fingerprint = fp

	return v, nil
}

// Len returns the number of entries, shadowed ones included.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// LookupID returns the id owning the given byte string.
func (v *Vocabulary) LookupID(b []byte) (uint32, bool) {
	id, ok := v.idOf[string(b)]
	return id, ok
}

// LookupToken returns the bytes of the given id.
func (v *Vocabulary) LookupToken(id uint32) ([]byte, bool) {
	idx, ok := v.indexOf[id]
	if !ok {
		return nil, false
	}
	return v.tokens[idx].Bytes, true
}

// Contains reports whether the id is part of the vocabulary.
func (v *Vocabulary) Contains(id uint32) bool {
	_, ok := v.indexOf[id]
	return ok
}

// At returns the entry at the given insertion index.
func (v *Vocabulary) At(index int) Token {
	return v.tokens[index]
}

// IDAt maps an insertion index to its token id.
func (v *Vocabulary) IDAt(index int) (uint32, bool) {
	if index < 0 || index >= len(v.tokens) {
		return 0, false
	}
	return v.tokens[index].ID, true
}

// Tokens returns all entries ordered by id.
func (v *Vocabulary) Tokens() []Token {
	return slices.Clone(v.byID)
}

// MaxTokenLen returns the length of the longest token.
func (v *Vocabulary) MaxTokenLen() int {
	return v.maxLen
}

// IsShadowed reports whether the id shares its bytes with an earlier entry.
func (v *Vocabulary) IsShadowed(id uint32) bool {
	_, ok := v.shadowed[id]
	return ok
}

// Shadowed returns the shadowed ids in ascending order.
func (v *Vocabulary) Shadowed() []uint32 {
	ids := make([]uint32, 0, len(v.shadowed))
	for id := range v.shadowed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fingerprint returns a digest of the (id, bytes) table. Two vocabularies
// with the same entries have the same fingerprint regardless of insertion
// order.
func (v *Vocabulary) Fingerprint() uint64 {
	return v.fingerprint
}

// FromStrings builds a vocabulary assigning ids 0..len(tokens)-1 in order.
func FromStrings(tokens ...string) (*Vocabulary, error) {
	entries := make([]Token, len(tokens))
	for i, tok := range tokens {
		entries[i] = Token{ID: uint32(i), Bytes: []byte(tok)} // #nosec G115
	}
	return New(entries)
}
