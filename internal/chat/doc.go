// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs one conversational turn.
//
// A turn appends the user's message to the session, streams a completion for
// the whole history, joins the non-empty deltas, and appends the assistant's
// reply. Hosts redraw from the session afterwards.
//
// # Usage
//
//	completer := chat.NewCompleter(client)
//	st, reply, err := chat.RunTurn(ctx, completer, modelID, text, st,
//	    chat.WithDelta(func(d string) { fmt.Print(d) }),
//	)
//
// On error the user message stays in history and no assistant message is
// appended.
package chat
