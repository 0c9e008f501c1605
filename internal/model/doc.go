// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and history.
//
// This package defines the core domain types used throughout misterio for
// representing a chat session's turns and the fixed set of hosted models a
// user can pick from.
//
// # Key Types
//
//   - Message: Single chat message with role, content, and optional name
//   - History: Append-only, ordered sequence of messages for one session
//   - WireMessage: The {role, content} projection sent to the completion API
//   - Role: Message role enumeration (user, assistant)
//
// # Usage
//
// Build a history and project it for the wire:
//
//	h := model.NewHistory()
//	_ = h.Append(model.NewMessage(model.RoleUser, "hola"))
//	req := h.Wire()
//
// Resolve the model picked in the UI:
//
//	id := model.SelectModel(r.FormValue("model"))
package model
