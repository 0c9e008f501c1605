// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// streamFrame caps redraws while a reply streams in (~30fps).
const streamFrame = time.Second / 30

// streamBuffer collects deltas written by the turn goroutine until the next
// frame tick drains them into the model.
type streamBuffer struct {
	mu     sync.Mutex
	buffer strings.Builder
}

// Write adds a delta. Safe to call from the turn goroutine.
func (sb *streamBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(delta)
}

// Take returns and clears everything written since the last Take.
func (sb *streamBuffer) Take() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.buffer.Len() == 0 {
		return "", false
	}
	s := sb.buffer.String()
	sb.buffer.Reset()
	return s, true
}

// streamTickMsg asks the model to drain the stream buffer.
type streamTickMsg struct{}

func streamTickCmd() tea.Cmd {
	return tea.Tick(streamFrame, func(time.Time) tea.Msg {
		return streamTickMsg{}
	})
}
