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

// Package store persists session snapshots between requests.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/llm-d/llm-d-oraculum/pkg/session"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Config holds the configuration for the session store.
// If multiple backends are configured, only the first one will be used.
type Config struct {
	// InMemoryConfig holds the configuration for the in-memory store.
	InMemoryConfig *InMemoryConfig `json:"inMemoryConfig"`
	// RedisConfig holds the configuration for the Redis store.
	RedisConfig *RedisConfig `json:"redisConfig"`
}

// DefaultConfig returns a default configuration for the session store.
func DefaultConfig() *Config {
	return &Config{
		InMemoryConfig: DefaultInMemoryConfig(),
	}
}

// Store keeps session snapshots by id. Implementations are safe for
// concurrent use; they do not order concurrent writes to the same id.
type Store interface {
	// Get returns the snapshot of id, or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Snapshot, error)
	// Put creates or replaces the snapshot of id.
	Put(ctx context.Context, id string, snap *session.Snapshot) error
	// Delete removes id. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// NewStore creates the first configured backend.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch {
	case cfg.InMemoryConfig != nil:
		s, err := NewInMemoryStore(cfg.InMemoryConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory session store: %w", err)
		}
		return s, nil
	case cfg.RedisConfig != nil:
		s, err := NewRedisStore(ctx, cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis session store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("no valid session store configuration provided")
	}
}
