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
	"os"

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab/hfexport"
)

func exportVocabCmd() *cli.Command {
	var (
		cfg hfexport.Config
		out string
	)

	return &cli.Command{
		Name:  "export-vocab",
		Usage: "Write the vocabulary of a HuggingFace tokenizer as a vocabulary file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tokenizer",
				Usage:       "path to tokenizer.json",
				Destination: &cfg.TokenizerFile,
			},
			&cli.StringFlag{
				Name:        "model",
				Usage:       "HuggingFace model name",
				Destination: &cfg.ModelName,
			},
			&cli.StringFlag{
				Name:        "hf-token",
				Usage:       "HuggingFace access token",
				Sources:     cli.EnvVars("HF_TOKEN"),
				Destination: &cfg.HuggingFaceToken,
			},
			&cli.StringFlag{
				Name:        "cache-dir",
				Usage:       "tokenizer download cache",
				Destination: &cfg.TokenizersCacheDir,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output file",
				Required:    true,
				Destination: &out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tokens, err := hfexport.Export(ctx, &cfg)
			if err != nil {
				return err
			}
			v, err := vocab.New(tokens)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := vocab.Write(f, v); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", out, err)
			}

			klog.FromContext(ctx).Info("exported vocabulary", "tokens", v.Len(),
				"shadowed", len(v.Shadowed()), "out", out)
			return nil
		},
	}
}
