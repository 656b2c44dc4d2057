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
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/bias"
	"github.com/llm-d/llm-d-oraculum/pkg/constraint"
	"github.com/llm-d/llm-d-oraculum/pkg/lattice"
	"github.com/llm-d/llm-d-oraculum/pkg/server"
	"github.com/llm-d/llm-d-oraculum/pkg/session/store"
)

type serveOptions struct {
	addr          string
	readTimeout   time.Duration
	biasStrategy  string
	biasCacheSize string
	scanner       string
	workers       int64
	redisAddress  string
	sessionTTL    time.Duration
	metricsBeat   time.Duration
}

func serveCmd() *cli.Command {
	var opts serveOptions

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session API over HTTP",
		Flags: append(vocabFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &opts.addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &opts.readTimeout,
			},
			&cli.StringFlag{
				Name:        "bias-strategy",
				Usage:       "allowed-token strategy (trie, brute-force)",
				Value:       bias.StrategyTrie,
				Destination: &opts.biasStrategy,
			},
			&cli.StringFlag{
				Name:        "bias-cache-size",
				Usage:       "memory budget of the allowed-token cache, empty to disable",
				Value:       bias.DefaultCacheConfig().Size,
				Destination: &opts.biasCacheSize,
			},
			&cli.StringFlag{
				Name:        "scanner",
				Usage:       "lattice match scanner (aho-corasick, trie)",
				Value:       lattice.ScannerAhoCorasick,
				Destination: &opts.scanner,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "lattice prefetch workers",
				Value:       int64(lattice.DefaultPoolConfig().WorkersCount),
				Destination: &opts.workers,
			},
			&cli.StringFlag{
				Name:        "redis",
				Usage:       "Redis address for sessions, in-memory when empty",
				Destination: &opts.redisAddress,
			},
			&cli.DurationFlag{
				Name:        "session-ttl",
				Usage:       "idle session expiry in Redis",
				Value:       time.Hour,
				Destination: &opts.sessionTTL,
			},
			&cli.DurationFlag{
				Name:        "metrics-beat",
				Usage:       "interval of the metrics log line, 0 to disable",
				Destination: &opts.metricsBeat,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, fileConfig, &opts)
			logger := klog.FromContext(ctx).WithName("serve")

			v, err := loadVocab(ctx, cmd)
			if err != nil {
				return err
			}
			m, err := constraint.NewManager(ctx, opts.managerConfig(), v)
			if err != nil {
				return err
			}
			go m.Run(ctx)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.NewServer(m).Register(e)

			logger.Info("starting server", "address", opts.addr, "vocab", v.Len())
			sc := echo.StartConfig{
				Address: opts.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = opts.readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func (opts *serveOptions) managerConfig() *constraint.Config {
	cfg := constraint.NewDefaultConfig()

	cfg.BiasConfig.Strategy = opts.biasStrategy
	if opts.biasCacheSize == "" {
		cfg.BiasConfig.CacheConfig = nil
	} else {
		cfg.BiasConfig.CacheConfig.Size = opts.biasCacheSize
	}
	cfg.BiasConfig.EnableMetrics = true
	cfg.BiasConfig.MetricsLoggingInterval = opts.metricsBeat

	cfg.LatticeConfig.Scanner = opts.scanner
	cfg.LatticePoolConfig.WorkersCount = int(opts.workers)

	if opts.redisAddress != "" {
		cfg.SessionStoreConfig = &store.Config{
			RedisConfig: &store.RedisConfig{
				Address:   opts.redisAddress,
				TTL:       opts.sessionTTL,
				KeyPrefix: store.DefaultRedisConfig().KeyPrefix,
			},
		}
	}
	return cfg
}
