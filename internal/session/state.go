// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/misterio/internal/model"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the per-session conversation state. Data accessors are safe for
// concurrent use; LockTurn additionally serializes whole turns.
type State struct {
	id        string
	startTime time.Time

	mu           sync.RWMutex
	history      *model.History
	lastActivity time.Time
	model        string
	lastError    string

	// turn is held for the duration of one chat turn.
	turn sync.Mutex
}

// NewState creates a State with a fresh random ID and empty history.
func NewState() *State {
	return newStateWithID(uuid.NewString())
}

func newStateWithID(id string) *State {
	now := time.Now()
	return &State{
		id:           id,
		startTime:    now,
		lastActivity: now,
		history:      model.NewHistory(),
		model:        model.DefaultModel(),
	}
}

// InitState returns s unchanged if it already exists, or a fresh State with
// an empty history if s is nil. Calling it repeatedly never touches history.
func InitState(s *State) *State {
	if s != nil {
		return s
	}
	return NewState()
}

// ID returns the session ID.
func (s *State) ID() string {
	return s.id
}

// StartTime returns when the session started.
func (s *State) StartTime() time.Time {
	return s.startTime
}

// =============================================================================
// HISTORY
// =============================================================================

// AppendMessage appends one message to the history. It never waits on a
// running turn. An optional name is attached when given.
func (s *State) AppendMessage(role model.Role, content string, name ...string) error {
	msg := model.NewMessage(role, content)
	if len(name) > 0 && name[0] != "" {
		msg = msg.WithName(name[0])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.history.Append(msg); err != nil {
		return fmt.Errorf("append to session %s: %w", s.id, err)
	}
	s.lastActivity = time.Now()
	return nil
}

// Messages returns a copy of the history in chronological order.
func (s *State) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Messages()
}

// Wire projects the history to {role, content} pairs for the API.
func (s *State) Wire() []model.WireMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Wire()
}

// Len returns the number of messages in the history.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// =============================================================================
// SELECTION AND ERRORS
// =============================================================================

// Model returns the last selected model.
func (s *State) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SelectModel records the chosen model, falling back to the default for
// unknown IDs, and returns the effective choice.
func (s *State) SelectModel(id string) string {
	chosen := model.SelectModel(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = chosen
	return chosen
}

// LastError returns the message of the last failed turn, or "".
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetLastError records err as the last turn error; nil clears it.
func (s *State) SetLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastError = ""
		return
	}
	s.lastError = err.Error()
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// Touch updates the last activity timestamp.
func (s *State) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// IdleTime returns how long since last activity.
func (s *State) IdleTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity)
}

// LockTurn blocks until no other turn is running for this session and
// returns the matching unlock function.
func (s *State) LockTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

// TryLockTurn acquires the turn lock without waiting.
func (s *State) TryLockTurn() (func(), bool) {
	if !s.turn.TryLock() {
		return nil, false
	}
	return s.turn.Unlock, true
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents a snapshot of a session.
type Status struct {
	SessionID string        `json:"session_id"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	IdleTime  time.Duration `json:"idle_time"`
	Messages  int           `json:"messages"`
	Model     string        `json:"model"`
	LastError string        `json:"last_error,omitempty"`
}

// GetStatus returns the current session status.
func (s *State) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	return Status{
		SessionID: s.id,
		StartTime: s.startTime,
		Duration:  now.Sub(s.startTime),
		IdleTime:  now.Sub(s.lastActivity),
		Messages:  s.history.Len(),
		Model:     s.model,
		LastError: s.lastError,
	}
}

// FormatDuration returns a short human-readable duration such as "4m 10s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return strconv.Itoa(mins) + "m"
		}
		return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return strconv.Itoa(hours) + "h"
	}
	return strconv.Itoa(hours) + "h " + strconv.Itoa(mins) + "m"
}
