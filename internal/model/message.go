// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and history.
package model

import (
	"errors"
	"fmt"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned when a message carries a role other than
// user or assistant.
var ErrInvalidRole = errors.New("invalid message role")

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one a session may hold.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat history.
//
// Content may be empty (an assistant turn whose stream carried no text).
// Name is optional and never sent to the completion API.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Name    *string `json:"name,omitempty"`
}

// NewMessage creates a new message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// WithName returns a copy of the message carrying the given name.
func (m Message) WithName(name string) Message {
	n := name
	m.Name = &n
	return m
}

// NameOrEmpty returns the message name, or "" when unset.
func (m Message) NameOrEmpty() string {
	if m.Name == nil {
		return ""
	}
	return *m.Name
}

// Validate checks the message can be appended to a history.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	return nil
}

// =============================================================================
// WIRE PROJECTION
// =============================================================================

// WireMessage is the {role, content} pair the completion API accepts.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Wire projects the message for the completion API, dropping Name.
func (m Message) Wire() WireMessage {
	return WireMessage{Role: string(m.Role), Content: m.Content}
}
