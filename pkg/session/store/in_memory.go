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
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
)

const defaultInMemorySize = 10000

// InMemoryConfig holds the configuration for the InMemoryStore.
type InMemoryConfig struct {
	// Size is the maximum number of sessions kept; the least recently used
	// ones are evicted.
	Size int `json:"size"`
}

// DefaultInMemoryConfig returns a default configuration for the InMemoryStore.
func DefaultInMemoryConfig() *InMemoryConfig {
	return &InMemoryConfig{
		Size: defaultInMemorySize,
	}
}

// InMemoryStore keeps encoded snapshots in a bounded LRU cache.
type InMemoryStore struct {
	data *lru.Cache[string, []byte]
}

var _ Store = &InMemoryStore{}

// NewInMemoryStore creates a new InMemoryStore instance.
func NewInMemoryStore(cfg *InMemoryConfig) (*InMemoryStore, error) {
	if cfg == nil {
		cfg = DefaultInMemoryConfig()
	}

	cache, err := lru.New[string, []byte](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory session store: %w", err)
	}
	return &InMemoryStore{data: cache}, nil
}

// Get decodes the snapshot stored under id, or returns ErrNotFound.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	b, ok := s.data.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	klog.FromContext(ctx).V(logging.TRACE).WithName("store.InMemoryStore.Get").Info("found session", "id", id)
	return session.UnmarshalSnapshot(b)
}

// Put encodes snap under id, evicting the least recently used session when
// the store is full.
func (s *InMemoryStore) Put(ctx context.Context, id string, snap *session.Snapshot) error {
	b, err := snap.Marshal()
	if err != nil {
		return err
	}
	if evicted := s.data.Add(id, b); evicted {
		klog.FromContext(ctx).V(logging.DEBUG).WithName("store.InMemoryStore.Put").Info("evicted oldest session")
	}
	return nil
}

// Delete removes the session, or returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	if !s.data.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	return s.data.Len()
}
