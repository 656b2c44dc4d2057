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
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
)

// maxLineSize bounds a single vocabulary line.
const maxLineSize = 1 << 20

// LoadOptions tunes how vocabulary files are parsed.
type LoadOptions struct {
	// AllowInvalidUTF8 keeps tokens whose decoded bytes are not valid UTF-8.
	// Byte-level vocabularies need this; by default such lines are skipped.
	AllowInvalidUTF8 bool `json:"allowInvalidUTF8"`
}

// DefaultLoadOptions returns the default load options.
func DefaultLoadOptions() *LoadOptions {
	return &LoadOptions{AllowInvalidUTF8: false}
}

// LoadStats reports what happened while loading.
type LoadStats struct {
	// Loaded is the number of entries kept.
	Loaded int
	// Skipped is the number of malformed or conflicting lines dropped.
	Skipped int
	// Duplicates is the number of kept entries whose bytes were already owned
	// by an earlier id.
	Duplicates int
}

// LoadFile reads a vocabulary file from disk.
func LoadFile(ctx context.Context, path string, opts *LoadOptions) (*Vocabulary, *LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vocabulary file: %w", err)
	}
	defer f.Close()

	return Load(ctx, f, opts)
}

// Load parses a vocabulary in the line format
//
//	<base64 token bytes> <whitespace> <decimal id>
//
// Blank lines are ignored. Lines with the wrong number of fields, bad base64,
// an empty token, a non-numeric id, an id seen before or (unless allowed)
// invalid UTF-8 are skipped and counted. Only I/O errors fail the load.
func Load(ctx context.Context, r io.Reader, opts *LoadOptions) (*Vocabulary, *LoadStats, error) {
	if opts == nil {
		opts = DefaultLoadOptions()
	}

	logger := klog.FromContext(ctx).WithName("vocab.Load")
	debugLogger := logger.V(logging.DEBUG)

	stats := &LoadStats{}
	seenIDs := make(map[uint32]struct{})
	seenBytes := make(map[string]struct{})
	var entries []Token

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		tok, reason := parseLine(line, opts)
		if reason == "" {
			if _, dup := seenIDs[tok.ID]; dup {
				reason = "duplicate id"
			}
		}
		if reason != "" {
			stats.Skipped++
			debugLogger.Info("skipping vocabulary line", "line", lineNo, "reason", reason)
			continue
		}

		seenIDs[tok.ID] = struct{}{}
		if _, dup := seenBytes[string(tok.Bytes)]; dup {
			stats.Duplicates++
			debugLogger.Info("token bytes already owned by an earlier id", "line", lineNo, "id", tok.ID)
		} else {
			seenBytes[string(tok.Bytes)] = struct{}{}
		}
		entries = append(entries, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	v, err := New(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}
	stats.Loaded = v.Len()

	logger.Info("loaded vocabulary", "tokens", stats.Loaded, "skipped", stats.Skipped,
		"duplicates", stats.Duplicates)

	return v, stats, nil
}

// parseLine returns the parsed token or a non-empty reason for skipping it.
func parseLine(line string, opts *LoadOptions) (Token, string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Token{}, fmt.Sprintf("expected 2 fields, got %d", len(fields))
	}

	b, err := base64.StdEncoding.DecodeString(fields[0])
	if err != nil {
		return Token{}, "invalid base64"
	}
	if len(b) == 0 {
		return Token{}, "empty token"
	}
	if !opts.AllowInvalidUTF8 && !utf8.Valid(b) {
		return Token{}, "invalid utf-8"
	}

	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Token{}, "invalid id"
	}

	return Token{ID: uint32(id), Bytes: b}, ""
}

// Write serializes the vocabulary in the format read by Load, one entry per
// line in insertion order.
func Write(w io.Writer, v *Vocabulary) error {
	bw := bufio.NewWriter(w)
	for _, tok := range v.tokens {
		if _, err := fmt.Fprintf(bw, "%s %d\n", base64.StdEncoding.EncodeToString(tok.Bytes), tok.ID); err != nil {
			return fmt.Errorf("failed to write token %d: %w", tok.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush vocabulary: %w", err)
	}
	return nil
}
