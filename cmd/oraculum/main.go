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


// Command oraculum inspects vocabularies and constraint sessions, and serves
// them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"
)

func main() {
	app := &cli.Command{
		Name:  "oraculum",
		Usage: "Token-constraint engine CLI",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := setupLogging(verbosity); err != nil {
				return ctx, err
			}
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return ctx, err
			}
			fileConfig = cfg
			return klog.NewContext(ctx, klog.Background()), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			routesCmd(),
			biasCmd(),
			walkCmd(),
			trieCmd(),
			serveCmd(),
			exportVocabCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	klog.Flush()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging routes the --v flag into klog.
func setupLogging(v int64) error {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("v", strconv.FormatInt(v, 10)); err != nil {
		return fmt.Errorf("failed to set log verbosity: %w", err)
	}
	return nil
}
