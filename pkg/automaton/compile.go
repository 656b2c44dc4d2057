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

package automaton

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Supported automaton kinds.
const (
	KindLiterals = "literals"
	KindPrefix   = "prefix"
)

// Spec describes an automaton to compile.
type Spec struct {
	// Kind is one of KindLiterals (default) or KindPrefix.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty" msgpack:"kind"`
	// Pattern is the kind-specific pattern, e.g. "monday|tuesday".
	Pattern string `json:"pattern" yaml:"pattern" msgpack:"pattern"`
}

func (s Spec) String() string {
	kind := s.Kind
	if kind == "" {
		kind = KindLiterals
	}
	return fmt.Sprintf("%s:%q", kind, s.Pattern)
}

// Compile builds the automaton described by spec.
func Compile(spec Spec) (Automaton, error) {
	switch spec.Kind {
	case "", KindLiterals:
		return NewLiteralSet(spec.Pattern)
	case KindPrefix:
		return NewPrefix([]byte(spec.Pattern)), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, spec.Kind)
	}
}

// Compiled is the outcome of CompileWithFallback.
type Compiled struct {
	Automaton Automaton
	// Spec is the spec that Automaton was compiled from.
	Spec Spec
	// Rejected holds the compile error of the requested spec when the
	// fallback was used instead. Nil otherwise.
	Rejected error
}

// CompileWithFallback compiles spec, and if that fails compiles fallback
// instead. The rejection of spec is always reported in the result, a caller
// is never silently handed the fallback. An error is returned only when
// neither compiles or no fallback was given.
func CompileWithFallback(logger klog.Logger, spec Spec, fallback *Spec) (*Compiled, error) {
	return CompileWithFallbackFunc(logger, Compile, spec, fallback)
}

// CompileWithFallbackFunc is CompileWithFallback with a custom compile
// function, e.g. a caching one.
func CompileWithFallbackFunc(logger klog.Logger, compile func(Spec) (Automaton, error), spec Spec,
	fallback *Spec,
) (*Compiled, error) {
	a, err := compile(spec)
	if err == nil {
		return &Compiled{Automaton: a, Spec: spec}, nil
	}
	if fallback == nil {
		return nil, fmt.Errorf("failed to compile %s: %w", spec, err)
	}

	logger.Error(err, "requested pattern rejected, using fallback", "requested", spec, "fallback", *fallback)

	fa, ferr := compile(*fallback)
	if ferr != nil {
		return nil, fmt.Errorf("failed to compile %s and fallback %s: %w", spec, *fallback, ferr)
	}
	return &Compiled{Automaton: fa, Spec: *fallback, Rejected: err}, nil
}
