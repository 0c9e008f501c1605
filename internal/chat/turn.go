// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/misterio/internal/groq"
	"github.com/jeranaias/misterio/internal/model"
	"github.com/jeranaias/misterio/internal/session"
)

// ErrNoClient is returned when a turn is attempted without a completion client.
var ErrNoClient = errors.New("no completion client configured")

// =============================================================================
// COMPLETER
// =============================================================================

// ChunkStream iterates over completion chunks.
type ChunkStream interface {
	Next() bool
	Current() groq.StreamChunk
	Err() error
	Close() error
}

// Completer opens streaming completions.
type Completer interface {
	CreateChatCompletionStream(ctx context.Context, req groq.CompletionRequest) (ChunkStream, error)
}

type clientCompleter struct {
	client *groq.Client
}

// NewCompleter adapts a groq client to Completer. A nil client yields nil.
func NewCompleter(c *groq.Client) Completer {
	if c == nil {
		return nil
	}
	return clientCompleter{client: c}
}

func (c clientCompleter) CreateChatCompletionStream(ctx context.Context, req groq.CompletionRequest) (ChunkStream, error) {
	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator collects non-empty deltas in arrival order.
type Accumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content   strings.Builder
	parts     int
	chunks    int
	start     time.Time
	firstPart time.Duration
	finish    string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{start: time.Now()}
}

// Add records one chunk's delta and reports whether it was kept. Empty deltas,
// including role-only and finish chunks, are dropped.
func (a *Accumulator) Add(delta string) bool {
	a.chunks++
	if delta == "" {
		return false
	}
	if a.parts == 0 {
		a.firstPart = time.Since(a.start)
	}
	a.parts++
	a.content.WriteString(delta)
	return true
}

// String returns the joined content, "" if nothing was kept.
func (a *Accumulator) String() string {
	return a.content.String()
}

// Parts returns how many deltas were kept.
func (a *Accumulator) Parts() int {
	return a.parts
}

// Finish records the finish reason a chunk carried. Chunks without one leave
// the last recorded reason in place.
func (a *Accumulator) Finish(reason string) {
	if reason != "" {
		a.finish = reason
	}
}

// FinishReason returns why the provider ended the reply, "" if it never said.
func (a *Accumulator) FinishReason() string {
	return a.finish
}

// Chunks returns how many chunks were seen, kept or not.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// =============================================================================
// TURN OPTIONS
// =============================================================================

type turnConfig struct {
	onDelta  func(string)
	onRedraw func(*session.State)
	logger   zerolog.Logger
}

// TurnOption configures RunTurn.
type TurnOption func(*turnConfig)

// WithDelta delivers each kept delta as it arrives.
func WithDelta(fn func(delta string)) TurnOption {
	return func(c *turnConfig) {
		c.onDelta = fn
	}
}

// WithRedraw is called once after a successful turn so the host can redraw
// from the updated session.
func WithRedraw(fn func(st *session.State)) TurnOption {
	return func(c *turnConfig) {
		c.onRedraw = fn
	}
}

// WithLogger sets the logger used for turn logging.
func WithLogger(l zerolog.Logger) TurnOption {
	return func(c *turnConfig) {
		c.logger = l
	}
}

// =============================================================================
// RUN TURN
// =============================================================================

// RunTurn processes one user message against state and returns the state and
// the assistant's reply. A nil state is initialized first. Turns on the same
// state are serialized.
//
// On failure the user message stays in history, no assistant message is
// appended, and the error is recorded on the state and returned.
func RunTurn(ctx context.Context, client Completer, modelID, userText string, state *session.State, opts ...TurnOption) (*session.State, string, error) {
	cfg := turnConfig{logger: log.With().Str("component", "chat").Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	state = session.InitState(state)
	if client == nil {
		return state, "", ErrNoClient
	}

	unlock := state.LockTurn()
	defer unlock()

	modelID = state.SelectModel(modelID)
	logger := cfg.logger.With().Str("session", state.ID()).Str("model", modelID).Logger()

	if err := state.AppendMessage(model.RoleUser, userText); err != nil {
		return state, "", err
	}

	reply, acc, err := stream(ctx, client, modelID, state.Wire(), cfg.onDelta)
	if err != nil {
		state.SetLastError(err)
		logger.Warn().Err(err).Int("chunks", acc.Chunks()).Msg("turn failed")
		return state, "", err
	}

	if err := state.AppendMessage(model.RoleAssistant, reply); err != nil {
		return state, "", err
	}
	state.SetLastError(nil)

	logger.Info().
		Int("chunks", acc.Chunks()).
		Int("parts", acc.Parts()).
		Int("chars", len(reply)).
		Dur("first_token", acc.firstPart).
		Str("finish_reason", acc.FinishReason()).
		Dur("duration", time.Since(acc.start)).
		Msg("turn completed")

	if cfg.onRedraw != nil {
		cfg.onRedraw(state)
	}
	return state, reply, nil
}

// stream issues the completion request and drains it.
func stream(ctx context.Context, client Completer, modelID string, history []model.WireMessage, onDelta func(string)) (string, *Accumulator, error) {
	acc := NewAccumulator()

	s, err := client.CreateChatCompletionStream(ctx, groq.CompletionRequest{
		Model:    modelID,
		Messages: history,
		Stream:   true,
	})
	if err != nil {
		return "", acc, fmt.Errorf("completion request: %w", err)
	}
	defer s.Close()

	for s.Next() {
		chunk := s.Current()
		acc.Finish(chunk.FinishReason())
		delta := chunk.Content()
		if acc.Add(delta) && onDelta != nil {
			onDelta(delta)
		}
	}
	if err := s.Err(); err != nil {
		return "", acc, fmt.Errorf("completion stream: %w", err)
	}
	return acc.String(), acc, nil
}
