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


package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/constraint"
	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/utils"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// maxListed caps the allowed tokens printed per step.
const maxListed = 32

func walkCmd() *cli.Command {
	var (
		spec  automaton.Spec
		input string
	)

	return &cli.Command{
		Name:  "walk",
		Usage: "Interactively consume tokens under a pattern or along the segmentations of an input",
		Flags: append(append(vocabFlags(), patternFlags(&spec)...),
			&cli.StringFlag{
				Name:        "input",
				Usage:       "text to spell with vocabulary tokens",
				Destination: &input,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("input") == cmd.IsSet("pattern") {
				return fmt.Errorf("exactly one of --input and --pattern is required")
			}
			v, err := loadVocab(ctx, cmd)
			if err != nil {
				return err
			}
			m, err := constraint.NewManager(ctx, nil, v)
			if err != nil {
				return err
			}

			var w session.Walker
			if cmd.IsSet("input") {
				w = m.NewLatticeSession(ctx, []byte(input))
			} else {
				aw, _, err := m.NewAutomatonSession(ctx, spec, nil)
				if err != nil {
					return err
				}
				w = aw
			}
			return runWalk(os.Stdin, os.Stdout, w, v)
		},
	}
}

// runWalk reads one command per line: whitespace-separated token refs (an id,
// or "=TEXT" for the token spelled TEXT), "reset" or "quit". It returns at
// "quit" or end of input.
func runWalk(in io.Reader, out io.Writer, w session.Walker, v *vocab.Vocabulary) error {
	scanner := bufio.NewScanner(in)
	for {
		printWalkState(out, w, v)
		if w.Terminal() {
			_, _ = fmt.Fprintln(out, "terminal: the output is complete")
		}
		_, _ = fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case line == "reset":
			w.Reset()
			continue
		}

		ids, err := utils.SliceMapE(strings.Fields(line), func(ref string) (uint32, error) {
			return parseTokenRef(ref, v)
		})
		if err != nil {
			_, _ = fmt.Fprintln(out, err)
			continue
		}
		for _, id := range ids {
			if result := w.Consume(id); !result.Ok() {
				_, _ = fmt.Fprintf(out, "reset: %s\n", result.Reason)
				break
			}
		}
	}
}

var errUnknownRef = errors.New("expected a token id or =TEXT")

func parseTokenRef(line string, v *vocab.Vocabulary) (uint32, error) {
	if text, ok := strings.CutPrefix(line, "="); ok {
		id, found := v.LookupID([]byte(text))
		if !found {
			return 0, fmt.Errorf("no token spells %q", text)
		}
		return id, nil
	}
	id, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		return 0, errUnknownRef
	}
	return uint32(id), nil
}

func printWalkState(out io.Writer, w session.Walker, v *vocab.Vocabulary) {
	allowed := sets.List(w.AllowedNow())
	_, _ = fmt.Fprintf(out, "text: %q\nallowed (%d):", w.Text(), len(allowed))
	for i, id := range allowed {
		if i == maxListed {
			_, _ = fmt.Fprint(out, " ...")
			break
		}
		b, _ := v.LookupToken(id)
		_, _ = fmt.Fprintf(out, " %d:%s", id, displayToken(b))
	}
	_, _ = fmt.Fprintln(out)
}
