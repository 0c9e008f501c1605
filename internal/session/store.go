// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// Config holds configuration for the session store.
type Config struct {
	// IdleTimeout ends sessions idle for longer than this. Zero disables expiry.
	IdleTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{IdleTimeout: time.Hour}
}

// Store keeps sessions in memory keyed by ID.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	cfg      Config
	logger   zerolog.Logger

	// onEnd is called outside the lock for every swept session.
	onEnd func(id string)
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	return &Store{
		sessions: make(map[string]*State),
		cfg:      cfg,
		logger:   log.With().Str("component", "session").Logger(),
	}
}

// Get returns the session with the given ID. Unknown or empty IDs get a new
// session under a freshly generated ID; callers must use State.ID rather than
// the ID they passed in.
func (st *Store) Get(id string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok && id != "" {
		s.Touch()
		return s
	}

	s := InitState(nil)
	st.sessions[s.ID()] = s
	st.logger.Debug().Str("session", s.ID()).Int("active", len(st.sessions)).Msg("session started")
	return s
}

// Lookup returns an existing session without creating one.
func (st *Store) Lookup(id string) (*State, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Delete ends a session immediately.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	onEnd := st.onEnd
	st.mu.Unlock()

	if ok && onEnd != nil {
		onEnd(id)
	}
}

// SetEndCallback sets the function called when a session ends.
func (st *Store) SetEndCallback(fn func(id string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onEnd = fn
}

// Sweep ends every session idle longer than idle and returns how many were
// removed. Sessions with a turn in progress are kept.
func (st *Store) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}

	st.mu.Lock()
	var ended []string
	for id, s := range st.sessions {
		if s.IdleTime() < idle {
			continue
		}
		unlock, ok := s.TryLockTurn()
		if !ok {
			continue
		}
		unlock()
		delete(st.sessions, id)
		ended = append(ended, id)
	}
	onEnd := st.onEnd
	remaining := len(st.sessions)
	st.mu.Unlock()

	for _, id := range ended {
		if onEnd != nil {
			onEnd(id)
		}
	}
	if len(ended) > 0 {
		st.logger.Info().Int("ended", len(ended)).Int("active", remaining).Msg("idle sessions swept")
	}
	return len(ended)
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (st *Store) Run(ctx context.Context, interval time.Duration) error {
	if st.cfg.IdleTimeout <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st.Sweep(st.cfg.IdleTimeout)
		}
	}
}
