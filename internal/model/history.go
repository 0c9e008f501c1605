// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// HISTORY TYPE
// =============================================================================

// History is the ordered, append-only list of messages for one session.
//
// Insertion order is chronological order is render order. Messages are never
// edited or removed once appended; readers always receive copies.
//
// History is not safe for concurrent use. The owning session serializes access.
type History struct {
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{messages: make([]Message, 0)}
}

// Append adds a message to the end of the history.
func (h *History) Append(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	h.messages = append(h.messages, cloneMessage(msg))
	return nil
}

// Len returns the number of messages in the history.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.messages)
}

// Messages returns a copy of all messages in order.
func (h *History) Messages() []Message {
	if h == nil {
		return nil
	}
	out := make([]Message, len(h.messages))
	for i, m := range h.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

// Wire projects the full history to {role, content} pairs for the
// completion API.
func (h *History) Wire() []WireMessage {
	if h == nil {
		return nil
	}
	out := make([]WireMessage, len(h.messages))
	for i, m := range h.messages {
		out[i] = m.Wire()
	}
	return out
}

// cloneMessage copies a message so the caller cannot reach stored state
// through the Name pointer.
func cloneMessage(m Message) Message {
	if m.Name != nil {
		n := *m.Name
		m.Name = &n
	}
	return m
}
