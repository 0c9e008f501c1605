// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/misterio/internal/model"
	"github.com/jeranaias/misterio/internal/secrets"
)

const testKey = "gsk_test_abcdefghijklmnopqrstuvwxyz"

// sseServer returns a test server that writes events as an SSE stream and
// records the decoded request body.
func sseServer(t *testing.T, events []string, got *CompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":    "chatcmpl-1",
		"model": "llama-3.1-8b-instant",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": content},
		}},
	})
	return string(b)
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for s.Next() {
		out = append(out, s.Current().Content())
	}
	return out
}

// =============================================================================
// FACTORY TESTS
// =============================================================================

func TestCreateClient(t *testing.T) {
	store := secrets.MapStore{"CLAVE_API": testKey}

	c, err := CreateClient(store, "CLAVE_API")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Len(t, c.KeyFingerprint(), 8)
	assert.NotContains(t, c.KeyFingerprint(), "gsk_")
}

func TestCreateClient_MissingSecret(t *testing.T) {
	tests := []struct {
		name  string
		store secrets.Store
	}{
		{name: "empty store", store: secrets.MapStore{}},
		{name: "nil store", store: nil},
		{name: "other key only", store: secrets.MapStore{"OTHER": "x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := CreateClient(tc.store, "CLAVE_API")
			assert.Nil(t, c)

			var authErr *AuthConfigurationError
			require.True(t, errors.As(err, &authErr), "got %T: %v", err, err)
			assert.Equal(t, "CLAVE_API", authErr.Key)
			assert.True(t, errors.Is(err, secrets.ErrNotFound))
		})
	}
}

func TestCreateClient_StoreFailurePropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := CreateClient(failingStore{err: boom}, "")

	assert.ErrorIs(t, err, boom)
	var authErr *AuthConfigurationError
	assert.False(t, errors.As(err, &authErr))
}

type failingStore struct{ err error }

func (f failingStore) Get(string) (string, error) { return "", f.err }

func TestKeyFingerprint_Empty(t *testing.T) {
	assert.Equal(t, "none", NewClient("").KeyFingerprint())
	assert.Equal(t, NewClient(testKey).KeyFingerprint(), NewClient("  "+testKey+"\n").KeyFingerprint())
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestCreateChatCompletionStream(t *testing.T) {
	var got CompletionRequest
	srv := sseServer(t, []string{chunk("Hel"), chunk("lo"), chunk(""), chunk(" world"), "[DONE]"}, &got)

	c := NewClient(testKey, WithBaseURL(srv.URL+"/"))
	msgs := []model.WireMessage{{Role: "user", Content: "hi"}}

	s, err := c.CreateChatCompletionStream(context.Background(), CompletionRequest{
		Model:    "llama-3.1-8b-instant",
		Messages: msgs,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"Hel", "lo", "", " world"}, collect(t, s))
	assert.NoError(t, s.Err())
	assert.False(t, s.Next(), "Next after end must stay false")

	assert.True(t, got.Stream, "stream flag must always be sent")
	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	assert.Equal(t, msgs, got.Messages)
}

func TestCreateChatCompletionStream_Headers(t *testing.T) {
	var auth, accept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		accept.Store(r.Header.Get("Accept"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, collect(t, s))
	assert.Equal(t, "Bearer "+testKey, auth.Load())
	assert.Equal(t, "text/event-stream", accept.Load())
}

func TestCreateChatCompletionStream_RoleAndNullChunks(t *testing.T) {
	events := []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":null}}]}`,
		chunk("ok"),
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[]}`,
	}
	srv := sseServer(t, events, nil)

	s, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	defer s.Close()

	var contents, reasons []string
	for s.Next() {
		contents = append(contents, s.Current().Content())
		reasons = append(reasons, s.Current().FinishReason())
	}
	require.NoError(t, s.Err(), "a stream that ends without [DONE] is still clean")
	assert.Equal(t, []string{"", "", "ok", "", ""}, contents)
	assert.Equal(t, []string{"", "", "", "stop", ""}, reasons)
}

func TestCreateChatCompletionStream_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		wantMsg  string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			sentinel: ErrAuthFailed,
			wantMsg:  "Invalid API Key",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"slow down"}}`,
			sentinel: ErrRateLimited,
			wantMsg:  "slow down",
		},
		{
			name:     "unknown model",
			status:   http.StatusNotFound,
			body:     `{"error":{"message":"The model does not exist","code":"model_not_found"}}`,
			sentinel: ErrModelNotFound,
			wantMsg:  "does not exist",
		},
		{
			name:    "plain text body",
			status:  http.StatusBadGateway,
			body:    "upstream exploded",
			wantMsg: "upstream exploded",
		},
		{
			name:    "empty body",
			status:  http.StatusServiceUnavailable,
			wantMsg: "Service Unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			s, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})
			assert.Nil(t, s)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Contains(t, apiErr.Error(), tc.wantMsg)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
			assert.Equal(t, int32(1), calls.Load(), "requests must not be retried")
		})
	}
}

func TestCreateChatCompletionStream_MidStreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   []string
	}{
		{
			name:   "provider error event",
			events: []string{chunk("par"), `{"error":{"message":"overloaded","type":"server_error"}}`},
			want:   []string{"par"},
		},
		{
			name:   "undecodable chunk",
			events: []string{chunk("a"), chunk("b"), `{not json`},
			want:   []string{"a", "b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := sseServer(t, tc.events, nil)

			s, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, tc.want, collect(t, s))

			var te *StreamTransportError
			require.True(t, errors.As(s.Err(), &te), "got %T: %v", s.Err(), s.Err())
			assert.Equal(t, len(tc.want), te.Received)
		})
	}
}

func TestCreateChatCompletionStream_ConnectionDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: %s\n\n", chunk("partial"))
		w.(http.Flusher).Flush()
		// Hijack and close to simulate a dropped connection.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	s, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"partial"}, collect(t, s))

	var te *StreamTransportError
	require.True(t, errors.As(s.Err(), &te), "got %T: %v", s.Err(), s.Err())
	assert.Equal(t, 1, te.Received)
}

func TestCreateChatCompletionStream_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(testKey, WithBaseURL(url)).CreateChatCompletionStream(context.Background(), CompletionRequest{Model: "m"})

	var te *StreamTransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.Zero(t, te.Received)
}

func TestCreateChatCompletionStream_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := sseServer(t, []string{chunk("x")}, nil)
	_, err := NewClient(testKey, WithBaseURL(srv.URL)).CreateChatCompletionStream(ctx, CompletionRequest{Model: "m"})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader(t *testing.T) {
	input := ": keepalive\n" +
		"event: message\n" +
		"data: first\n" +
		"data: second\r\n" +
		"\n" +
		"id: 7\n" +
		"data:tight\n" +
		"\n" +
		"data: trailing"

	r := NewSSEReader(strings.NewReader(input))

	ev, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "message", ev)
	assert.Equal(t, "first\nsecond", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tight", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "trailing", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReader_ChunkTooLarge(t *testing.T) {
	big := "data: " + strings.Repeat("x", MaxChunkSize+1) + "\n\n"
	_, _, err := NewSSEReader(strings.NewReader(big)).ReadEvent()
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}
