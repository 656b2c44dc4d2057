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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

func patternFlags(spec *automaton.Spec) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "pattern",
			Usage:       "alternation of literals, e.g. monday|tuesday",
			Destination: &spec.Pattern,
		},
		&cli.StringFlag{
			Name:        "kind",
			Usage:       "pattern kind (literals, prefix)",
			Value:       automaton.KindLiterals,
			Destination: &spec.Kind,
		},
	}
}

func biasCmd() *cli.Command {
	var (
		spec    automaton.Spec
		consume string
	)

	return &cli.Command{
		Name:  "bias",
		Usage: "Print the tokens a pattern allows, comparing the trie walk with brute force",
		Flags: append(append(vocabFlags(), patternFlags(&spec)...),
			&cli.StringFlag{
				Name:        "consume",
				Usage:       "text already generated, the state is reached by stepping over it",
				Destination: &consume,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if spec.Pattern == "" && spec.Kind != automaton.KindPrefix {
				return fmt.Errorf("--pattern is required")
			}
			v, err := loadVocab(ctx, cmd)
			if err != nil {
				return err
			}
			a, err := automaton.Compile(spec)
			if err != nil {
				return err
			}
			return printBias(os.Stdout, a, toktrie.Build(v), v, []byte(consume))
		},
	}
}

func printBias(w io.Writer, a automaton.Automaton, t *toktrie.Trie, v *vocab.Vocabulary, consumed []byte) error {
	state := automaton.StepBytes(a, a.Start(), consumed)
	if automaton.IsDead(state) {
		return fmt.Errorf("pattern rejects %q", consumed)
	}

	allowed, trieStats := bias.NewTrieEngine(t).AllowedTokens(a, state)
	bruteAllowed, bruteStats := bias.NewBruteForce(v).AllowedTokens(a, state)
	if !allowed.Equal(bruteAllowed) {
		return fmt.Errorf("trie walk and brute force disagree: %v vs %v",
			sets.List(allowed), sets.List(bruteAllowed))
	}

	for _, id := range sets.List(allowed) {
		b, _ := v.LookupToken(id)
		if _, err := fmt.Fprintf(w, "%d\t%s\n", id, displayToken(b)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "allowed: %d, accepting: %t\ntransitions: trie %s (pruned %s), brute force %s\n",
		allowed.Len(), a.IsAccept(state), humanize.Comma(int64(trieStats.Transitions)),
		humanize.Comma(int64(trieStats.Pruned)), humanize.Comma(int64(bruteStats.Transitions)))
	return err
}
