// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatSelection(t *testing.T) {
	tests := []struct {
		name   string
		format string
		json   bool
	}{
		{name: "auto on a buffer is json", format: "", json: true},
		{name: "explicit auto", format: "auto", json: true},
		{name: "json", format: "JSON", json: true},
		{name: "console", format: "console", json: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Options{Format: tc.format, Output: &buf})
			require.NoError(t, err)

			logger.Info().Str("component", "test").Msg("hola")

			var entry map[string]any
			decodeErr := json.Unmarshal(buf.Bytes(), &entry)
			if tc.json {
				require.NoError(t, decodeErr, buf.String())
				assert.Equal(t, "hola", entry["message"])
				assert.Equal(t, "test", entry["component"])
			} else {
				assert.Error(t, decodeErr)
				assert.Contains(t, buf.String(), "hola")
			}
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "WARN", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
