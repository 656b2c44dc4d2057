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

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
)

const defaultKeyPrefix = "oraculum:session:"

// RedisConfig holds the configuration for the RedisStore.
type RedisConfig struct {
	Address string `json:"address,omitempty"` // Redis server address
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration `json:"ttl,omitempty"`
	// KeyPrefix namespaces session keys.
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// DefaultRedisConfig returns a default configuration for the RedisStore.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:   "redis://127.0.0.1:6379",
		TTL:       time.Hour,
		KeyPrefix: defaultKeyPrefix,
	}
}

// RedisStore keeps msgpack-encoded snapshots in Redis strings.
type RedisStore struct {
	RedisClient *redis.Client
	ttl         time.Duration
	prefix      string
}

var _ Store = &RedisStore{}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	address := config.Address
	if !strings.HasPrefix(address, "redis://") &&
		!strings.HasPrefix(address, "rediss://") &&
		!strings.HasPrefix(address, "unix://") {
		address = "redis://" + address
	}

	redisOpt, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redisURL: %w", err)
	}

	redisClient := redis.NewClient(redisOpt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisStore{
		RedisClient: redisClient,
		ttl:         config.TTL,
		prefix:      prefix,
	}, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Get decodes the snapshot stored under id, or returns ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	b, err := r.RedisClient.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session.UnmarshalSnapshot(b)
}

// Put encodes snap under id and refreshes its TTL.
func (r *RedisStore) Put(ctx context.Context, id string, snap *session.Snapshot) error {
	b, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := r.RedisClient.Set(ctx, r.key(id), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", id, err)
	}
	klog.FromContext(ctx).V(logging.TRACE).WithName("store.RedisStore.Put").Info("stored session", "id", id, "bytes", len(b))
	return nil
}

// Delete removes the session, or returns ErrNotFound.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.RedisClient.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
