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

package vocab

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
)

// fingerprintEntry is the canonical encoding of one table row.
type fingerprintEntry struct {
	_     struct{} `cbor:",toarray"`
	ID    uint32
	Bytes []byte
}

// fingerprint computes the lower 64 bits of the SHA256 of the canonical CBOR
// encoding of the id-ordered table.
func fingerprint(byID []Token) (uint64, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode() // deterministic
	if err != nil {
		return 0, err
	}

	payload := make([]fingerprintEntry, len(byID))
	for i, tok := range byID {
		payload[i] = fingerprintEntry{ID: tok.ID, Bytes: tok.Bytes}
	}

	b, err := encMode.Marshal(payload)
	if err != nil {
		return 0, err
	}

	sum := sha256.Sum256(b)
	return binary.BigEndian.Uint64(sum[24:]), nil
}
