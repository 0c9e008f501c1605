// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the misterio web host.
//
// # Endpoints
//
//   - GET  /             - Chat page (server-rendered)
//   - POST /chat         - Run one turn from a form post, then 303 to /
//   - GET  /ws           - WebSocket: run turns and stream deltas live
//   - GET  /api/history  - Session history as JSON
//   - GET  /health       - Health check
//   - GET  /static/...   - Page assets
//
// Each browser gets one session, identified by the misterio_session cookie.
// History lives in memory only and ends when the session goes idle.
//
// # WebSocket Frames
//
// The client sends {"message": "...", "model": "..."}. The server answers
// with zero or more {"type": "delta", "content": "..."} frames followed by
// exactly one {"type": "done", "content": "<reply>"} or
// {"type": "error", "error": "..."} frame.
//
// # Usage
//
//	srv := server.New(server.Options{
//		Addr:      "127.0.0.1:8501",
//		Completer: chat.NewCompleter(client),
//		Sessions:  session.NewStore(session.DefaultConfig()),
//		Theme:     config.NewWatcher(config.DefaultThemePath),
//	})
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal().Err(err).Msg("server failed")
//	}
package server
