// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package groq provides a streaming client for Groq's OpenAI-compatible chat
// completions API.
//
// # Key Types
//
//   - Client: HTTP client bound to one API key
//   - CompletionRequest: model, {role, content} messages, stream flag
//   - Stream: iterator over server-sent completion chunks
//   - AuthConfigurationError: the API key secret is missing at startup
//   - StreamTransportError: the network or provider failed mid-request
//
// # Usage
//
// Build the client once from the secret store and reuse it:
//
//	client, err := groq.CreateClient(store, "CLAVE_API")
//	if err != nil {
//	    return err // startup fails loudly
//	}
//	stream, err := client.CreateChatCompletionStream(ctx, groq.CompletionRequest{
//	    Model:    "llama-3.1-8b-instant",
//	    Messages: history.Wire(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Current().Content())
//	}
//	return stream.Err()
//
// # Security
//
// API keys are never logged. Log lines carry a short SHA-256 fingerprint.
// There is no retry logic and no client-side timeout on streams; the
// caller's context bounds every request.
package groq
