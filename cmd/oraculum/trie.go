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

	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

func trieCmd() *cli.Command {
	var dump bool

	return &cli.Command{
		Name:  "trie",
		Usage: "Print token trie statistics",
		Flags: append(vocabFlags(),
			&cli.BoolFlag{
				Name:        "dump",
				Usage:       "print every token in trie order",
				Destination: &dump,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			v, err := loadVocab(ctx, cmd)
			if err != nil {
				return err
			}
			return printTrie(os.Stdout, toktrie.Build(v), v, dump)
		},
	}
}

func printTrie(w io.Writer, t *toktrie.Trie, v *vocab.Vocabulary, dump bool) error {
	_, err := fmt.Fprintf(w, "tokens: %s\nnodes: %s\nmax depth: %d\nshadowed: %d\nfingerprint: %016x\n",
		humanize.Comma(int64(t.NumTokens())), humanize.Comma(int64(t.NumNodes())), t.MaxDepth(),
		len(t.Shadowed()), v.Fingerprint())
	if err != nil || !dump {
		return err
	}
	t.Walk(func(path []byte, id uint32) bool {
		_, err = fmt.Fprintf(w, "%d\t%s\n", id, displayToken(path))
		return err == nil
	})
	return err
}
