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


package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/session"
	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
)

// CreateSessionRequest starts a lattice session over Input or an automaton
// session constrained by Automaton.
type CreateSessionRequest struct {
	Mode      session.Mode    `json:"mode"`
	Input     string          `json:"input,omitempty"`
	Automaton *automaton.Spec `json:"automaton,omitempty"`
	Fallback  *automaton.Spec `json:"fallback,omitempty"`
}

// SessionResponse describes a session after a request.
type SessionResponse struct {
	ID        string          `json:"id"`
	Mode      session.Mode    `json:"mode"`
	Input     string          `json:"input,omitempty"`
	Automaton *automaton.Spec `json:"automaton,omitempty"`
	Output    []uint32        `json:"output"`
	Text      string          `json:"text"`
	Terminal  bool            `json:"terminal"`
	// Rejected is set when the requested pattern was replaced by the fallback.
	Rejected string `json:"rejected,omitempty"`
}

// AllowedResponse lists the allowed token ids in ascending order.
type AllowedResponse struct {
	ID      string   `json:"id"`
	Allowed []uint32 `json:"allowed"`
}

// ConsumeRequest offers one token to a session.
type ConsumeRequest struct {
	TokenID *uint32 `json:"token_id"`
}

// ConsumeResponse reports the outcome of a consume.
type ConsumeResponse struct {
	SessionResponse
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// PrefetchRequest lists inputs whose lattices should be built ahead of time.
type PrefetchRequest struct {
	Inputs []string `json:"inputs"`
}

func newSessionID() string {
	return "sess_" + uuid.NewString()
}

func describe(id string, w session.Walker) SessionResponse {
	snap := w.Snapshot()
	resp := SessionResponse{
		ID:       id,
		Mode:     snap.Mode,
		Output:   w.Output(),
		Text:     string(w.Text()),
		Terminal: w.Terminal(),
	}
	if resp.Output == nil {
		resp.Output = []uint32{}
	}
	switch snap.Mode {
	case session.ModeLattice:
		resp.Input = string(snap.Input)
	case session.ModeAutomaton:
		spec := snap.Automaton
		resp.Automaton = &spec
	}
	return resp
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	ctx := c.Request().Context()
	req, err := decodeJSON[CreateSessionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}

	var (
		w        session.Walker
		rejected string
	)
	switch req.Mode {
	case session.ModeLattice:
		if req.Automaton != nil {
			return writeBadRequest(c, "automaton is not allowed in lattice mode")
		}
		w = s.manager.NewLatticeSession(ctx, []byte(req.Input))
	case session.ModeAutomaton:
		if req.Automaton == nil {
			return writeBadRequest(c, "automaton is required in automaton mode")
		}
		aw, compiled, err := s.manager.NewAutomatonSession(ctx, *req.Automaton, req.Fallback)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		if compiled.Rejected != nil {
			rejected = compiled.Rejected.Error()
		}
		w = aw
	default:
		return writeBadRequest(c, fmt.Sprintf("mode must be %q or %q", session.ModeLattice, session.ModeAutomaton))
	}

	id := newSessionID()
	if err := s.save(ctx, id, w); err != nil {
		return writeServerError(c, err)
	}
	klog.FromContext(ctx).V(logging.DEBUG).WithName("server.CreateSession").Info("session created",
		"id", id, "mode", req.Mode)

	resp := describe(id, w)
	resp.Rejected = rejected
	return c.JSON(http.StatusCreated, resp)
}

// withSession loads the session named in the path under its lock and runs
// fn. The walker is stored back when fn reports a change, then fn's response
// is written.
func (s *Server) withSession(c *echo.Context, fn func(id string, w session.Walker) (resp any, changed bool)) error {
	id := c.Param("id")
	if strings.TrimSpace(id) == "" {
		return writeBadRequest(c, "session id is required")
	}
	ctx := c.Request().Context()

	unlock := s.lock(id)
	defer unlock()

	w, err := s.load(ctx, id)
	if errors.Is(err, errSessionNotFound) {
		return writeNotFound(c, err.Error())
	} else if err != nil {
		return writeServerError(c, err)
	}

	resp, changed := fn(id, w)
	if changed {
		if err := s.save(ctx, id, w); err != nil {
			return writeServerError(c, err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSession(c *echo.Context) error {
	return s.withSession(c, func(id string, w session.Walker) (any, bool) {
		return describe(id, w), false
	})
}

func (s *Server) handleAllowed(c *echo.Context) error {
	return s.withSession(c, func(id string, w session.Walker) (any, bool) {
		allowed := sets.List(w.AllowedNow())
		if allowed == nil {
			allowed = []uint32{}
		}
		return AllowedResponse{ID: id, Allowed: allowed}, false
	})
}

func (s *Server) handleConsume(c *echo.Context) error {
	req, err := decodeJSON[ConsumeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.TokenID == nil {
		return writeBadRequest(c, "token_id is required")
	}

	return s.withSession(c, func(id string, w session.Walker) (any, bool) {
		result := w.Consume(*req.TokenID)
		resp := ConsumeResponse{SessionResponse: describe(id, w), Outcome: "advanced"}
		if !result.Ok() {
			resp.Outcome = "reset"
			resp.Reason = result.Reason.String()
		}
		return resp, true
	})
}

func (s *Server) handleReset(c *echo.Context) error {
	return s.withSession(c, func(id string, w session.Walker) (any, bool) {
		w.Reset()
		return describe(id, w), true
	})
}

func (s *Server) handleDeleteSession(c *echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	unlock := s.lock(id)
	defer unlock()

	if _, err := s.manager.Store().Get(ctx, id); err != nil {
		return writeNotFound(c, fmt.Sprintf("%v: %s", errSessionNotFound, id))
	}
	if err := s.manager.Store().Delete(ctx, id); err != nil {
		return writeServerError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handlePrefetch(c *echo.Context) error {
	req, err := decodeJSON[PrefetchRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	s.manager.Prefetch(req.Inputs...)
	return c.JSON(http.StatusAccepted, map[string]any{"queued": len(req.Inputs)})
}

func (s *Server) handleVocab(c *echo.Context) error {
	v := s.manager.Vocabulary()
	return c.JSON(http.StatusOK, map[string]any{
		"size":          v.Len(),
		"max_token_len": v.MaxTokenLen(),
		"shadowed":      len(v.Shadowed()),
		"fingerprint":   fmt.Sprintf("%016x", v.Fingerprint()),
	})
}
