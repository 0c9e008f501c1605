// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/groq"
	"github.com/jeranaias/misterio/internal/secrets"
)

// writeSettings writes a settings file pointing every path into a temp dir.
func writeSettings(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "misterio.toml")
	content := fmt.Sprintf(`[paths]
theme = %q
secrets = %q
%s`, filepath.Join(dir, "config.toml"), filepath.Join(dir, "secrets.toml"), extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := run("version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "misterio version "+Version)

	code, out, _ = run("version", "--json")
	require.Equal(t, ExitSuccess, code)
	var data VersionData
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, Version, data.Version)
	assert.NotEmpty(t, data.GoVersion)
}

func TestServe_MissingKeyIsFatal(t *testing.T) {
	t.Setenv("CLAVE_API", "")
	path := writeSettings(t, "")

	code, _, stderr := run("--config", path, "--log-format", "json", "serve")
	assert.Equal(t, ExitAuthError, code)
	assert.Contains(t, stderr, "CLAVE_API")
}

func TestRoot_InvalidSettings(t *testing.T) {
	path := writeSettings(t, "[logging]\nlevel = \"loud\"\n")

	code, _, _ := run("--config", path, "version")
	assert.Equal(t, ExitSuccess, code, "version does not load settings")

	code, _, stderr := run("--config", path)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "logging.level")
}

func TestRoot_BadFlag(t *testing.T) {
	code, _, _ := run("--no-such-flag")
	assert.Equal(t, ExitUsageError, code)
}

func TestChat_RequiresTerminal(t *testing.T) {
	orig := isTTY
	isTTY = func() bool { return false }
	t.Cleanup(func() { isTTY = orig })

	code, _, stderr := run("chat")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "interactive terminal")
}

func TestBootstrap(t *testing.T) {
	t.Run("key present", func(t *testing.T) {
		t.Setenv("CLAVE_API", "gsk_test")
		a, err := bootstrap(&globalFlags{settingsPath: writeSettings(t, "")}, io.Discard)
		require.NoError(t, err)
		assert.NotNil(t, a.completer)
		assert.Equal(t, "CLAVE_API", a.settings.Groq.SecretKey)
	})

	t.Run("key from secrets file", func(t *testing.T) {
		t.Setenv("CLAVE_API", "")
		path := writeSettings(t, "")
		secretsPath := filepath.Join(filepath.Dir(path), "secrets.toml")
		require.NoError(t, os.WriteFile(secretsPath, []byte(`CLAVE_API = "gsk_file"`), 0o600))

		a, err := bootstrap(&globalFlags{settingsPath: path}, io.Discard)
		require.NoError(t, err)
		assert.NotNil(t, a.completer)
	})

	t.Run("missing key allowed", func(t *testing.T) {
		t.Setenv("CLAVE_API", "")
		a, err := bootstrap(&globalFlags{settingsPath: writeSettings(t, ""), allowMissingKey: true}, io.Discard)
		require.NoError(t, err)
		assert.Nil(t, a.completer)
	})

	t.Run("flags override logging", func(t *testing.T) {
		t.Setenv("CLAVE_API", "gsk_test")
		a, err := bootstrap(&globalFlags{settingsPath: writeSettings(t, ""), logLevel: "debug", logFormat: "json"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "debug", a.settings.Logging.Level)
		assert.Equal(t, "json", a.settings.Logging.Format)
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain", err: errors.New("boom"), want: ExitGeneralError},
		{name: "auth", err: &groq.AuthConfigurationError{Key: "CLAVE_API", Err: secrets.ErrNotFound}, want: ExitAuthError},
		{name: "wrapped auth", err: fmt.Errorf("start: %w", &groq.AuthConfigurationError{Key: "k"}), want: ExitAuthError},
		{name: "validation", err: fmt.Errorf("invalid settings: %w", config.ValidateErrors{{Field: "f", Message: "m"}}), want: ExitConfigError},
		{name: "command code wins", err: &CommandError{Command: "x", Code: ExitConfigError, Err: errors.New("y")}, want: ExitConfigError},
		{name: "usage", err: usageError{msg: "bad"}, want: ExitUsageError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}
