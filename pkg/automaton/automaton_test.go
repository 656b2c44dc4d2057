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

package automaton_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	. "github.com/llm-d/llm-d-oraculum/pkg/automaton"
)

func TestPrefix(t *testing.T) {
	a := NewPrefix([]byte("hel"))

	for _, s := range []string{"hel", "hell", "hello", "help", "helmet"} {
		assert.True(t, Matches(a, []byte(s)), "should accept %q", s)
	}
	for _, s := range []string{"he", "h", "world", "", "HEL"} {
		assert.False(t, Matches(a, []byte(s)), "should reject %q", s)
	}
}

func TestPrefix_Empty(t *testing.T) {
	a := NewPrefix(nil)
	for _, s := range []string{"", "a", "anything"} {
		assert.True(t, Matches(a, []byte(s)))
	}
}

func TestPrefix_DeadIsMonotonic(t *testing.T) {
	a := NewPrefix([]byte("ab"))

	state := a.Step(a.Start(), 'x')
	require.True(t, IsDead(state))
	for b := 0; b < 256; b++ {
		assert.Equal(t, DeadState, a.Step(state, byte(b)))
	}
	assert.False(t, a.IsAccept(DeadState))
}

func TestLiteralSet(t *testing.T) {
	a, err := NewLiteralSet("monday|tuesday|wednesday|thursday|friday")
	require.NoError(t, err)

	for _, s := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		assert.True(t, Matches(a, []byte(s)), "should accept %q", s)
	}
	for _, s := range []string{"", "mon", "mondays", "saturday", "Monday", "t"} {
		assert.False(t, Matches(a, []byte(s)), "should reject %q", s)
	}

	// "t" is a live prefix shared by tuesday and thursday.
	state := a.Step(a.Start(), 't')
	assert.False(t, IsDead(state))
	assert.False(t, a.IsAccept(state))
	assert.True(t, IsDead(a.Step(state, 'x')))

	// An accepting state without continuations is dead on every byte.
	end := StepBytes(a, a.Start(), []byte("friday"))
	require.True(t, a.IsAccept(end))
	assert.True(t, IsDead(a.Step(end, 's')))
}

func TestLiteralSet_PrefixOfAnother(t *testing.T) {
	a, err := NewLiteralSet("ab|abc|ab")
	require.NoError(t, err)

	assert.True(t, Matches(a, []byte("ab")))
	assert.True(t, Matches(a, []byte("abc")))
	assert.False(t, Matches(a, []byte("a")))
	assert.Equal(t, []string{"ab", "abc"}, a.Literals())
	assert.Equal(t, 4, a.NumStates()) // root, a, ab, abc
}

func TestParseAlternation(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{name: "single", pattern: "abc", want: []string{"abc"}},
		{name: "several", pattern: "ab|ac", want: []string{"ab", "ac"}},
		{name: "escaped bar", pattern: `a\|b|c`, want: []string{"a|b", "c"}},
		{name: "escaped backslash", pattern: `a\\|b`, want: []string{`a\`, "b"}},
		{name: "empty pattern", pattern: "", wantErr: true},
		{name: "empty alternative", pattern: "a||b", wantErr: true},
		{name: "trailing bar", pattern: "a|", wantErr: true},
		{name: "dangling escape", pattern: `ab\`, wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseAlternation(c.pattern)
			if c.wantErr {
				require.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := NewLiteralSet("ab|ac")
	require.NoError(t, err)
	b, err := NewLiteralSet("ac|ab|ab")
	require.NoError(t, err)
	c, err := NewLiteralSet("ab|ad")
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, NewPrefix([]byte("ab")).Fingerprint(), NewPrefix([]byte("ac")).Fingerprint())

	// "a|bc" and "ab|c" share concatenated bytes.
	x, err := NewLiteralSet("a|bc")
	require.NoError(t, err)
	y, err := NewLiteralSet("ab|c")
	require.NoError(t, err)
	assert.NotEqual(t, x.Fingerprint(), y.Fingerprint())
}

func TestLiteralSet_OrderIndependentStates(t *testing.T) {
	a, err := NewLiteralSet("ab|cd")
	require.NoError(t, err)
	b, err := NewLiteralSet("cd|ab|cd")
	require.NoError(t, err)

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.NumStates(), b.NumStates())
	for _, prefix := range []string{"", "a", "ab", "c", "cd", "x"} {
		assert.Equal(t, StepBytes(a, a.Start(), []byte(prefix)), StepBytes(b, b.Start(), []byte(prefix)),
			"state after %q", prefix)
	}
}

func TestCompile(t *testing.T) {
	a, err := Compile(Spec{Pattern: "ab|ac"})
	require.NoError(t, err)
	assert.IsType(t, &LiteralSet{}, a)

	a, err = Compile(Spec{Kind: KindPrefix, Pattern: "SELECT "})
	require.NoError(t, err)
	assert.True(t, Matches(a, []byte("SELECT *")))

	_, err = Compile(Spec{Kind: "regex", Pattern: "a+"})
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestCompileWithFallback(t *testing.T) {
	logger := klog.Background()
	fallback := &Spec{Pattern: "yes|no"}

	compiled, err := CompileWithFallback(logger, Spec{Pattern: "ab"}, fallback)
	require.NoError(t, err)
	assert.NoError(t, compiled.Rejected)
	assert.Equal(t, "ab", compiled.Spec.Pattern)

	compiled, err = CompileWithFallback(logger, Spec{Pattern: "a||b"}, fallback)
	require.NoError(t, err)
	require.ErrorIs(t, compiled.Rejected, ErrInvalidPattern)
	assert.Equal(t, *fallback, compiled.Spec)
	assert.True(t, Matches(compiled.Automaton, []byte("yes")))

	_, err = CompileWithFallback(logger, Spec{Pattern: "a||b"}, nil)
	require.ErrorIs(t, err, ErrInvalidPattern)

	_, err = CompileWithFallback(logger, Spec{Pattern: "a||b"}, &Spec{Pattern: ""})
	require.ErrorIs(t, err, ErrInvalidPattern)
}
