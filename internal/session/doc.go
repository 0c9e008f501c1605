// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides in-memory per-conversation state.
//
// Each browser (or terminal) session owns one State: an append-only chat
// history plus the last selected model and the last turn error. Nothing is
// persisted; a session's history is destroyed when the session ends.
//
// # Key Types
//
//   - State: one session's history and bookkeeping
//   - Store: sessions keyed by ID with idle expiry
//   - Status: a point-in-time snapshot of a State
//
// # Usage
//
//	store := session.NewStore(session.Config{IdleTimeout: time.Hour})
//	st := store.Get(cookieValue) // unknown IDs get a fresh State
//	unlock := st.LockTurn()
//	defer unlock()
//	_ = st.AppendMessage(model.RoleUser, "hola")
//
// Run the sweeper to end idle sessions:
//
//	go store.Run(ctx, time.Minute)
package session
