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
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/urfave/cli/v3"

	"github.com/llm-d/llm-d-oraculum/pkg/lattice"
	"github.com/llm-d/llm-d-oraculum/pkg/toktrie"
	"github.com/llm-d/llm-d-oraculum/pkg/utils"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

func routesCmd() *cli.Command {
	var (
		scanner string
		limit   int64
		count   bool
	)

	return &cli.Command{
		Name:      "routes",
		Usage:     "Print every segmentation of INPUT into vocabulary tokens",
		ArgsUsage: "INPUT",
		Flags: append(vocabFlags(),
			&cli.StringFlag{
				Name:        "scanner",
				Usage:       "match scanner (aho-corasick, trie)",
				Value:       lattice.ScannerAhoCorasick,
				Destination: &scanner,
			},
			&cli.Int64Flag{
				Name:        "max",
				Usage:       "stop after this many segmentations, 0 for all",
				Destination: &limit,
			},
			&cli.BoolFlag{
				Name:        "count",
				Usage:       "only print the number of segmentations",
				Destination: &count,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one INPUT argument")
			}
			v, err := loadVocab(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := lattice.NewScanner(scanner, v, toktrie.Build(v))
			if err != nil {
				return err
			}
			l := lattice.Build([]byte(cmd.Args().First()), v, s)
			if count {
				_, err := fmt.Fprintln(os.Stdout, l.CountPaths())
				return err
			}
			return printRoutes(os.Stdout, l, v, int(limit))
		},
	}
}

func printRoutes(w io.Writer, l *lattice.Lattice, v *vocab.Vocabulary, limit int) error {
	printed := 0
	for path := range l.Paths() {
		if limit > 0 && printed == limit {
			break
		}
		if _, err := fmt.Fprintln(w, formatRoute(path, v)); err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		_, err := fmt.Fprintln(w, "no segmentation")
		return err
	}
	return nil
}

func formatRoute(path []uint32, v *vocab.Vocabulary) string {
	parts := utils.SliceMap(path, func(id uint32) string {
		b, _ := v.LookupToken(id)
		return displayToken(b)
	})
	return strings.Join(parts, " -> ")
}

// displayToken renders token bytes as-is when printable, quoted otherwise.
func displayToken(b []byte) string {
	if !utf8.Valid(b) {
		return strconv.Quote(string(b))
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return strconv.Quote(string(b))
		}
	}
	return string(b)
}
