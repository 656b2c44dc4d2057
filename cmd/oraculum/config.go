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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the oraculum configuration file
// (~/.config/oraculum/config.yaml). Flags given on the command line win over
// the file.
type Config struct {
	Vocab            string `yaml:"vocab"`
	AllowInvalidUTF8 *bool  `yaml:"allow_invalid_utf8"`

	// Engine
	BiasStrategy   string `yaml:"bias_strategy"`
	BiasCacheSize  string `yaml:"bias_cache_size"`
	LatticeScanner string `yaml:"lattice_scanner"`
	Workers        *int64 `yaml:"workers"`

	// Server
	ServerAddress string         `yaml:"server_address"`
	RedisAddress  string         `yaml:"redis_address"`
	SessionTTL    *time.Duration `yaml:"session_ttl"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "oraculum", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	} else if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyVocabConfig(c *cli.Command, cfg Config, path *string, allowInvalid *bool) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		*path = cfg.Vocab
	}
	if cfg.AllowInvalidUTF8 != nil && !c.IsSet("allow-invalid-utf8") {
		*allowInvalid = *cfg.AllowInvalidUTF8
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, opts *serveOptions) {
	if cfg.BiasStrategy != "" && !c.IsSet("bias-strategy") {
		opts.biasStrategy = cfg.BiasStrategy
	}
	if cfg.BiasCacheSize != "" && !c.IsSet("bias-cache-size") {
		opts.biasCacheSize = cfg.BiasCacheSize
	}
	if cfg.LatticeScanner != "" && !c.IsSet("scanner") {
		opts.scanner = cfg.LatticeScanner
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		opts.workers = *cfg.Workers
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		opts.addr = cfg.ServerAddress
	}
	if cfg.RedisAddress != "" && !c.IsSet("redis") {
		opts.redisAddress = cfg.RedisAddress
	}
	if cfg.SessionTTL != nil && !c.IsSet("session-ttl") {
		opts.sessionTTL = *cfg.SessionTTL
	}
}
