// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jeranaias/misterio/internal/chat"
	"github.com/jeranaias/misterio/internal/model"
	"github.com/jeranaias/misterio/internal/session"
	"github.com/jeranaias/misterio/internal/view"
)

// ============================================================================
// SESSIONS
// ============================================================================

// sessionFor returns the caller's session, starting one if the cookie is
// missing or stale, and sets the cookie on w when the ID changed.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.State {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	st := s.sessions.Get(id)
	if st.ID() != id {
		http.SetCookie(w, s.sessionCookie(st.ID()))
	}
	return st
}

func (s *Server) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// ============================================================================
// PAGE
// ============================================================================

// handleIndex handles GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(w, r)
	s.renderPage(w, st, http.StatusOK)
}

// renderPage renders the chat page for st with the given status.
func (s *Server) renderPage(w http.ResponseWriter, st *session.State, status int) {
	busy := s.opts.Completer == nil
	if unlock, ok := st.TryLockTurn(); ok {
		unlock()
	} else {
		busy = true
	}

	vm := view.Render(view.Input{
		Messages:      st.Messages(),
		SelectedModel: st.Model(),
		Theme:         s.theme.Current(),
		LastError:     st.LastError(),
		Busy:          busy,
	})

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, vm); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ============================================================================
// FORM TURN
// ============================================================================

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	st := s.sessionFor(w, r)
	modelID := st.SelectModel(r.PostFormValue("model"))
	message := r.PostFormValue("message")

	// A blank submission only changes the model selection.
	if strings.TrimSpace(message) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if len(message) > MaxMessageLength {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	if _, _, err := s.runTurn(r.Context(), r, st, modelID, message, nil); err != nil {
		s.renderPage(w, st, turnErrorStatus(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// runTurn runs one chat turn for st under ctx and logs failures.
func (s *Server) runTurn(ctx context.Context, r *http.Request, st *session.State, modelID, message string, onDelta func(string)) (*session.State, string, error) {
	opts := []chat.TurnOption{chat.WithLogger(s.logger)}
	if onDelta != nil {
		opts = append(opts, chat.WithDelta(onDelta))
	}

	st, reply, err := chat.RunTurn(ctx, s.opts.Completer, modelID, message, st, opts...)
	if err != nil {
		if errors.Is(err, chat.ErrNoClient) {
			st.SetLastError(err)
		}
		s.logger.Warn().Err(err).Str("session", st.ID()).Str("client_ip", GetClientIP(r)).
			Str("message", truncateString(message, 40)).Msg("turn failed")
	}
	return st, reply, err
}

// turnErrorStatus maps a turn error to the page status code.
func turnErrorStatus(err error) int {
	if errors.Is(err, chat.ErrNoClient) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// ============================================================================
// WEBSOCKET TURNS
// ============================================================================

// wsRequest is a client frame.
type wsRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// wsFrame is a server frame.
type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
	wsPongWait     = wsPingInterval + 10*time.Second
)

// handleWS handles GET /ws.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	st := s.sessions.Get(id)

	header := http.Header{}
	if st.ID() != id {
		header.Add("Set-Cookie", s.sessionCookie(st.ID()).String())
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	conn.SetReadLimit(MaxRequestBodySize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	logger := s.logger.With().Str("session", st.ID()).Logger()
	logger.Debug().Msg("websocket attached")

	// ctx ends when the client goes away, which aborts a turn in flight.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	requests := s.readRequests(ctx, cancel, conn, logger)

	for req := range requests {
		message := req.Message
		modelID := st.SelectModel(req.Model)
		if strings.TrimSpace(message) == "" {
			continue
		}
		if len(message) > MaxMessageLength {
			if err := writeFrame(conn, wsFrame{Type: "error", Error: "mensaje demasiado largo"}); err != nil {
				return
			}
			continue
		}

		var writeErr error
		_, reply, err := s.runTurn(ctx, r, st, modelID, message, func(delta string) {
			if writeErr != nil {
				return
			}
			if writeErr = writeFrame(conn, wsFrame{Type: "delta", Content: delta}); writeErr != nil {
				cancel()
			}
		})
		if writeErr != nil || ctx.Err() != nil {
			return
		}

		frame := wsFrame{Type: "done", Content: reply, Model: modelID}
		if err != nil {
			frame = wsFrame{Type: "error", Error: view.ErrorText(err.Error()), Model: modelID}
		}
		if err := writeFrame(conn, frame); err != nil {
			return
		}
	}
}

// readRequests reads client frames on their own goroutine so that a closed
// connection is noticed while a turn is streaming. The channel is closed and
// cancel called when reading stops.
func (s *Server) readRequests(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, logger zerolog.Logger) <-chan wsRequest {
	requests := make(chan wsRequest)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					logger.Debug().Err(err).Msg("websocket closed")
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()
	return requests
}

// pingLoop keeps the connection alive until done is closed.
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// WriteControl is safe to call concurrently with other writes.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

// ============================================================================
// JSON API
// ============================================================================

// HistoryMessage is one message in the history response.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// HistoryResponse is the GET /api/history response.
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Model     string           `json:"model"`
	Messages  []HistoryMessage `json:"messages"`
	LastError string           `json:"last_error,omitempty"`
}

// handleHistory handles GET /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(w, r)

	msgs := st.Messages()
	resp := HistoryResponse{
		SessionID: st.ID(),
		Model:     st.Model(),
		Messages:  make([]HistoryMessage, 0, len(msgs)),
		LastError: st.LastError(),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, HistoryMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.NameOrEmpty(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(w, r)
	s.writeJSON(w, http.StatusOK, st.GetStatus())
}

// handleEndSession handles DELETE /api/session. The caller's history is
// dropped and the cookie expired; the next request starts a new session.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err == nil {
		if _, ok := s.sessions.Lookup(c.Value); ok {
			s.sessions.Delete(c.Value)
		}
	}

	expired := s.sessionCookie("")
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	w.WriteHeader(http.StatusNoContent)
}

// sessionEnded is the store's end callback.
func (s *Server) sessionEnded(id string) {
	s.ended.Add(1)
	s.logger.Debug().Str("session", id).Msg("session ended")
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Sessions      int      `json:"sessions"`
	SessionsEnded int64    `json:"sessions_ended"`
	ModelClient   string   `json:"model_client"`
	Theme         string   `json:"theme"`
	Models        []string `json:"models"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Sessions:      s.sessions.Len(),
		SessionsEnded: s.ended.Load(),
		ModelClient:   "configured",
		Theme:         s.theme.Current().Status.String(),
		Models:        model.Models(),
	}
	if s.opts.Completer == nil {
		health.ModelClient = "not_configured"
		health.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, health)
}
