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


// Package server exposes constraint sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/llm-d/llm-d-oraculum/pkg/constraint"
	"github.com/llm-d/llm-d-oraculum/pkg/metrics"
	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/session/store"
)

const lockStripes = 64

// Server serves the session API. Sessions live in the manager's store
// between requests; each request restores, mutates and stores back.
type Server struct {
	manager *constraint.Manager
	locks   [lockStripes]sync.Mutex
}

// NewServer creates a Server over the given manager.
func NewServer(manager *constraint.Manager) *Server {
	metrics.Register()
	return &Server{manager: manager}
}

// Register installs the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/sessions", s.handleCreateSession)
	e.GET("/v1/sessions/:id", s.handleGetSession)
	e.GET("/v1/sessions/:id/allowed", s.handleAllowed)
	e.POST("/v1/sessions/:id/consume", s.handleConsume)
	e.POST("/v1/sessions/:id/reset", s.handleReset)
	e.DELETE("/v1/sessions/:id", s.handleDeleteSession)

	e.POST("/v1/lattices/prefetch", s.handlePrefetch)
	e.GET("/v1/vocab", s.handleVocab)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{})))
}

// lock serializes requests touching the same session id.
func (s *Server) lock(id string) func() {
	mu := &s.locks[xxhash.Sum64String(id)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

var errSessionNotFound = errors.New("session not found")

func (s *Server) load(ctx context.Context, id string) (session.Walker, error) {
	snap, err := s.manager.Store().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	} else if err != nil {
		return nil, err
	}
	return s.manager.Restore(ctx, snap)
}

func (s *Server) save(ctx context.Context, id string, w session.Walker) error {
	if err := s.manager.Store().Put(ctx, id, w.Snapshot()); err != nil {
		return fmt.Errorf("failed to store session %s: %w", id, err)
	}
	return nil
}
