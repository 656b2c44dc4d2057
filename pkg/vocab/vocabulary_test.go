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

package vocab_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

func line(token string, id int) string {
	return fmt.Sprintf("%s %d\n", base64.StdEncoding.EncodeToString([]byte(token)), id)
}

func TestLoad(t *testing.T) {
	input := line("a", 0) + line("aa", 1) + "\n" + line("aaa", 2)

	v, stats, err := Load(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, v.Len())
	assert.Equal(t, &LoadStats{Loaded: 3}, stats)

	id, ok := v.LookupID([]byte("aa"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)

	tok, ok := v.LookupToken(2)
	require.True(t, ok)
	assert.Equal(t, []byte("aaa"), tok)

	_, ok = v.LookupToken(3)
	assert.False(t, ok)
	assert.Equal(t, 3, v.MaxTokenLen())
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		line("ok", 7),
		"onlyonefield\n",
		"YQ== 1 extra\n",
		"!!notbase64!! 2\n",
		base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe}) + " 3\n",
		line("x", 0) + "",
		"eA== notanumber\n",
		"eA== -1\n",
		"eA== 4294967296\n",
		" 5\n",
		line("dup-id", 7),
	}, "")

	v, stats, err := Load(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, 9, stats.Skipped)
	assert.Equal(t, 2, v.Len())

	tok, ok := v.LookupToken(7)
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), tok, "first line with an id wins")
}

func TestLoad_InvalidUTF8Allowed(t *testing.T) {
	input := base64.StdEncoding.EncodeToString([]byte{0xff}) + " 3\n"

	v, stats, err := Load(context.Background(), strings.NewReader(input), &LoadOptions{AllowInvalidUTF8: true})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)

	id, ok := v.LookupID([]byte{0xff})
	require.True(t, ok)
	assert.Equal(t, uint32(3), id)
}

func TestLoad_Empty(t *testing.T) {
	v, stats, err := Load(context.Background(), strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 0, stats.Loaded)
	assert.Empty(t, v.Tokens())
}

func TestDuplicateBytes(t *testing.T) {
	input := line("ab", 5) + line("ab", 2) + line("c", 9)

	v, stats, err := Load(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 3, v.Len())

	id, ok := v.LookupID([]byte("ab"))
	require.True(t, ok)
	assert.Equal(t, uint32(5), id, "first inserted id owns the bytes")

	assert.True(t, v.IsShadowed(2))
	assert.False(t, v.IsShadowed(5))
	assert.Equal(t, []uint32{2}, v.Shadowed())

	tok, ok := v.LookupToken(2)
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), tok)
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]Token{{ID: 1, Bytes: []byte("a")}, {ID: 1, Bytes: []byte("b")}})
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = New([]Token{{ID: 1, Bytes: nil}})
	require.ErrorIs(t, err, ErrEmptyToken)
}

func TestOrdering(t *testing.T) {
	v, err := New([]Token{
		{ID: 9, Bytes: []byte("z")},
		{ID: 1, Bytes: []byte("y")},
		{ID: 4, Bytes: []byte("x")},
	})
	require.NoError(t, err)

	ids := make([]uint32, 0, v.Len())
	for _, tok := range v.Tokens() {
		ids = append(ids, tok.ID)
	}
	assert.Equal(t, []uint32{1, 4, 9}, ids)

	id, ok := v.IDAt(0)
	require.True(t, ok)
	assert.Equal(t, uint32(9), id)
	assert.Equal(t, []byte("y"), v.At(1).Bytes)

	_, ok = v.IDAt(3)
	assert.False(t, ok)
	_, ok = v.IDAt(-1)
	assert.False(t, ok)
}

func TestWriteThenLoad(t *testing.T) {
	v, err := New([]Token{
		{ID: 3, Bytes: []byte("hello")},
		{ID: 0, Bytes: []byte(" world")},
		{ID: 12, Bytes: []byte("\n")},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, v))
	assert.Equal(t, "aGVsbG8= 3\nIHdvcmxk 0\nCg== 12\n", buf.String())

	loaded, stats, err := Load(context.Background(), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, v.Tokens(), loaded.Tokens())
	assert.Equal(t, v.Fingerprint(), loaded.Fingerprint())
}

func TestFingerprint(t *testing.T) {
	a, err := New([]Token{{ID: 0, Bytes: []byte("a")}, {ID: 1, Bytes: []byte("b")}})
	require.NoError(t, err)
	reordered, err := New([]Token{{ID: 1, Bytes: []byte("b")}, {ID: 0, Bytes: []byte("a")}})
	require.NoError(t, err)
	changed, err := New([]Token{{ID: 0, Bytes: []byte("a")}, {ID: 1, Bytes: []byte("c")}})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), reordered.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), changed.Fingerprint())
}

func TestFromStrings(t *testing.T) {
	v, err := FromStrings("a", "b", "ab")
	require.NoError(t, err)

	id, ok := v.LookupID([]byte("ab"))
	require.True(t, ok)
	assert.Equal(t, uint32(2), id)
	assert.True(t, v.Contains(1))
	assert.False(t, v.Contains(3))
}
