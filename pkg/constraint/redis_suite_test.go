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


package constraint_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/llm-d/llm-d-oraculum/pkg/automaton"
	"github.com/llm-d/llm-d-oraculum/pkg/constraint"
	"github.com/llm-d/llm-d-oraculum/pkg/session/store"
	"github.com/llm-d/llm-d-oraculum/pkg/vocab"
)

// RedisSessionSuite runs managers against a mock Redis (miniredis) and checks
// that sessions survive a manager restart.
type RedisSessionSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	server *miniredis.Miniredis
	vocab  *vocab.Vocabulary
	config *constraint.Config
}

// SetupTest starts the mock Redis and a config pointing at it.
func (s *RedisSessionSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var err error
	s.server, err = miniredis.Run()
	s.Require().NoError(err)

	s.vocab, err = vocab.FromStrings("mon", "day", "tues", "m", "o", "n", "d", "a", "y", "t", "u", "e", "s")
	s.Require().NoError(err)

	s.config = constraint.NewDefaultConfig()
	s.config.SessionStoreConfig = &store.Config{
		RedisConfig: &store.RedisConfig{
			Address:   s.server.Addr(),
			TTL:       time.Minute,
			KeyPrefix: "test:",
		},
	}
}

// TearDownTest stops the mock Redis.
func (s *RedisSessionSuite) TearDownTest() {
	s.cancel()
	if s.server != nil {
		s.server.Close()
	}
}

func (s *RedisSessionSuite) newManager() *constraint.Manager {
	m, err := constraint.NewManager(s.ctx, s.config, s.vocab)
	s.Require().NoError(err)
	go m.Run(s.ctx)
	return m
}

func (s *RedisSessionSuite) TestAutomatonSessionSurvivesRestart() {
	first := s.newManager()
	w, _, err := first.NewAutomatonSession(s.ctx, automaton.Spec{Pattern: "monday|tuesday"}, nil)
	s.Require().NoError(err)
	s.Require().True(w.Consume(0).Ok()) // mon
	s.Require().NoError(first.Store().Put(s.ctx, "sess", w.Snapshot()))
	s.True(s.server.Exists("test:sess"))

	second := s.newManager()
	snap, err := second.Store().Get(s.ctx, "sess")
	s.Require().NoError(err)
	restored, err := second.Restore(s.ctx, snap)
	s.Require().NoError(err)

	s.Equal([]uint32{0}, restored.Output())
	s.Equal(sets.New[uint32](1, 6), restored.AllowedNow()) // day, d
	s.Require().True(restored.Consume(1).Ok())
	s.True(restored.Terminal())
	s.Equal([]byte("monday"), restored.Text())
}

func (s *RedisSessionSuite) TestLatticeSessionSurvivesRestart() {
	first := s.newManager()
	w := first.NewLatticeSession(s.ctx, []byte("tuesday"))
	s.Require().True(w.Consume(2).Ok()) // tues
	s.Require().NoError(first.Store().Put(s.ctx, "sess", w.Snapshot()))

	second := s.newManager()
	snap, err := second.Store().Get(s.ctx, "sess")
	s.Require().NoError(err)
	restored, err := second.Restore(s.ctx, snap)
	s.Require().NoError(err)
	s.Equal(sets.New[uint32](1, 6), restored.AllowedNow())
}

func (s *RedisSessionSuite) TestSessionExpires() {
	m := s.newManager()
	w := m.NewLatticeSession(s.ctx, []byte("day"))
	s.Require().NoError(m.Store().Put(s.ctx, "sess", w.Snapshot()))

	s.server.FastForward(2 * time.Minute)

	_, err := m.Store().Get(s.ctx, "sess")
	s.ErrorIs(err, store.ErrNotFound)
}

// TestRedisSessionSuite runs the RedisSessionSuite using testify's suite runner.
func TestRedisSessionSuite(t *testing.T) {
	suite.Run(t, new(RedisSessionSuite))
}
