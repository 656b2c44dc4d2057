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

// Package hfexport builds vocabularies from HuggingFace tokenizers.
package hfexport

import (
	"context"
	"fmt"

	"github.com/daulet/tokenizers"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// Config selects the tokenizer to export. TokenizerFile takes precedence over
// ModelName.
type Config struct {
	// TokenizerFile is a local tokenizer.json.
	TokenizerFile string `json:"tokenizerFile"`
	// ModelName is a HuggingFace model to fetch the tokenizer of.
	ModelName          string `json:"modelName"`
	HuggingFaceToken   string `json:"huggingFaceToken"`
	TokenizersCacheDir string `json:"tokenizersCacheDir"`
}

func (cfg *Config) open() (*tokenizers.Tokenizer, error) {
	if cfg.TokenizerFile != "" {
		return tokenizers.FromFile(cfg.TokenizerFile)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("either a tokenizer file or a model name is required")
	}

	var opts []tokenizers.TokenizerConfigOption
	if cfg.TokenizersCacheDir != "" {
		opts = append(opts, tokenizers.WithCacheDir(cfg.TokenizersCacheDir))
	}
	if cfg.HuggingFaceToken != "" {
		opts = append(opts, tokenizers.WithAuthToken(cfg.HuggingFaceToken))
	}
	return tokenizers.FromPretrained(cfg.ModelName, opts...)
}

// Export decodes every id of the tokenizer on its own and returns the
// non-empty results as vocabulary entries, in id order.
func Export(ctx context.Context, cfg *Config) ([]vocab.Token, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no tokenizer configuration provided")
	}

	tk, err := cfg.open()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	defer tk.Close()

	size := tk.VocabSize()
	entries := make([]vocab.Token, 0, size)
	empty := 0
	for id := uint32(0); id < size; id++ {
		text := tk.Decode([]uint32{id}, false)
		if text == "" {
			empty++
			continue
		}
		entries = append(entries, vocab.Token{ID: id, Bytes: []byte(text)})
	}

	klog.FromContext(ctx).WithName("hfexport.Export").Info("exported tokenizer vocabulary",
		"size", size, "exported", len(entries), "empty", empty)

	return entries, nil
}
