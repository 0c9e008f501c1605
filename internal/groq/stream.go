// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package groq

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxChunkSize is the maximum allowed size for a single SSE event (64KB).
const MaxChunkSize = 64 * 1024

// doneMarker terminates an OpenAI-compatible stream.
var doneMarker = []byte("[DONE]")

// ErrChunkTooLarge is returned when an SSE event exceeds MaxChunkSize.
var ErrChunkTooLarge = errors.New("stream chunk exceeds maximum size")

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk represents a single chunk from the streaming response.
type StreamChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one choice within a chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental text of a choice.
type ChunkDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content"`
}

// Content returns the first choice's delta content, or "" when the chunk
// carries none (role-only chunks, finish chunks, null content).
func (c StreamChunk) Content() string {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return ""
	}
	return *c.Choices[0].Delta.Content
}

// FinishReason returns the finish reason if present.
func (c StreamChunk) FinishReason() string {
	if len(c.Choices) == 0 || c.Choices[0].FinishReason == nil {
		return ""
	}
	return *c.Choices[0].FinishReason
}

// streamEnvelope decodes a data event that may be a chunk or an error.
type streamEnvelope struct {
	StreamChunk
	apiErrorResponse
}

// StreamTransportError means the network or provider failed while a request
// was in flight. Received counts the chunks delivered before the failure.
type StreamTransportError struct {
	Received int
	Err      error
}

// Error implements the error interface.
func (e *StreamTransportError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("stream error after %d chunks: %v", e.Received, e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamTransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error. Multiple data lines are
// joined with "\n". Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			if err != nil {
				return "", nil, io.EOF
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			size += len(data)
			if size > MaxChunkSize {
				return "", nil, ErrChunkTooLarge
			}
			dataLines = append(dataLines, data)
		}
		// Ignore other fields (id:, retry:, comments starting with :)

		if err != nil {
			// Final line had no trailing newline.
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}
	}
}

// =============================================================================
// STREAM ITERATOR
// =============================================================================

// Stream iterates over the chunks of one streaming completion. It is not
// safe for concurrent use, except that Close may be called from any
// goroutine.
type Stream struct {
	body    io.ReadCloser
	sse     *SSEReader
	logger  zerolog.Logger
	current StreamChunk
	count   int
	err     error
	done    bool

	closeOnce sync.Once
}

func newStream(body io.ReadCloser, logger zerolog.Logger) *Stream {
	return &Stream{body: body, sse: NewSSEReader(body), logger: logger}
}

// Next advances to the next chunk. It returns false at the end of the stream
// or on error; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	_, data, err := s.sse.ReadEvent()
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = &StreamTransportError{Received: s.count, Err: err}
		}
		s.logger.Debug().Int("chunks", s.count).Err(s.err).Msg("stream finished")
		return false
	}

	if bytes.Equal(bytes.TrimSpace(data), doneMarker) {
		s.done = true
		s.logger.Debug().Int("chunks", s.count).Msg("stream finished")
		return false
	}

	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.done = true
		s.err = &StreamTransportError{Received: s.count, Err: fmt.Errorf("failed to decode chunk: %w", err)}
		return false
	}
	if apiErr := env.toAPIError(0); apiErr != nil {
		s.done = true
		s.err = &StreamTransportError{Received: s.count, Err: apiErr}
		return false
	}

	s.current = env.StreamChunk
	s.count++
	return true
}

// Current returns the chunk read by the last successful Next.
func (s *Stream) Current() StreamChunk {
	return s.current
}

// Err returns the error that ended the stream, or nil on a clean end.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
