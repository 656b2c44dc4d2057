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

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

var (
	verbosity        int64
	configFile       string
	fileConfig       Config
	vocabPath        string
	allowInvalidUTF8 bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "v",
			Usage:       "log verbosity (4 debug, 5 trace)",
			Destination: &verbosity,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a YAML config file",
			Value:       defaultConfigPath(),
			Destination: &configFile,
		},
	}
}

func vocabFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "vocabulary file, one base64-and-id pair per line",
			Destination: &vocabPath,
		},
		&cli.BoolFlag{
			Name:        "allow-invalid-utf8",
			Usage:       "keep tokens whose bytes are not valid UTF-8",
			Destination: &allowInvalidUTF8,
		},
	}
}

// loadVocab loads the vocabulary named by --vocab, falling back to the config
// file.
func loadVocab(ctx context.Context, cmd *cli.Command) (*vocab.Vocabulary, error) {
	applyVocabConfig(cmd, fileConfig, &vocabPath, &allowInvalidUTF8)
	if vocabPath == "" {
		return nil, fmt.Errorf("--vocab is required")
	}

	opts := vocab.DefaultLoadOptions()
	opts.AllowInvalidUTF8 = allowInvalidUTF8
	v, stats, err := vocab.LoadFile(ctx, vocabPath, opts)
	if err != nil {
		return nil, err
	}
	klog.FromContext(ctx).Info("loaded vocabulary", "path", vocabPath,
		"loaded", stats.Loaded, "skipped", stats.Skipped, "duplicates", stats.Duplicates)
	return v, nil
}
