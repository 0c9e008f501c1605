// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// DefaultSettingsPath is the settings file location, relative to the working
// directory.
const DefaultSettingsPath = "misterio.toml"

// =============================================================================
// SETTINGS STRUCTURES
// =============================================================================

// Settings represents the complete application configuration.
type Settings struct {
	Server  ServerSettings  `toml:"server" json:"server"`
	Groq    GroqSettings    `toml:"groq" json:"groq"`
	Paths   PathSettings    `toml:"paths" json:"paths"`
	Logging LoggingSettings `toml:"logging" json:"logging"`
}

// ServerSettings contains web host configuration.
type ServerSettings struct {
	// Addr is the HTTP listen address
	Addr string `toml:"addr" json:"addr"`
	// SessionIdleTimeoutSecs ends a browser session after this much inactivity
	SessionIdleTimeoutSecs int `toml:"session_idle_timeout_secs" json:"session_idle_timeout_secs"`
	// SecureCookies sets the Secure flag on the session cookie
	SecureCookies bool `toml:"secure_cookies" json:"secure_cookies"`
}

// GroqSettings contains completion API configuration.
type GroqSettings struct {
	// BaseURL is the OpenAI-compatible API root
	BaseURL string `toml:"base_url" json:"base_url"`
	// SecretKey is the secret store key holding the API key
	SecretKey string `toml:"secret_key" json:"secret_key"`
}

// PathSettings contains file locations.
type PathSettings struct {
	// Theme is the optional theme file
	Theme string `toml:"theme" json:"theme"`
	// Secrets is the optional secrets file consulted after the environment
	Secrets string `toml:"secrets" json:"secrets"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	// Level is a zerolog level name
	Level string `toml:"level" json:"level"`
	// Format is "auto", "console", or "json"
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns Settings with sensible default values.
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:                   "127.0.0.1:8501",
			SessionIdleTimeoutSecs: 3600,
		},
		Groq: GroqSettings{
			BaseURL:   "https://api.groq.com/openai/v1",
			SecretKey: "CLAVE_API",
		},
		Paths: PathSettings{
			Theme:   DefaultThemePath,
			Secrets: filepath.Join(".streamlit", "secrets.toml"),
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SessionIdleTimeout returns the idle timeout as a duration.
func (s *Settings) SessionIdleTimeout() time.Duration {
	return time.Duration(s.Server.SessionIdleTimeoutSecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadSettings loads settings from path. A missing file is not an error; the
// defaults are used. Environment overrides are applied last.
func LoadSettings(path string) (*Settings, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to decode settings file %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero-value fields with defaults.
func (s *Settings) SetDefaults() {
	d := Default()

	if s.Server.Addr == "" {
		s.Server.Addr = d.Server.Addr
	}
	if s.Server.SessionIdleTimeoutSecs == 0 {
		s.Server.SessionIdleTimeoutSecs = d.Server.SessionIdleTimeoutSecs
	}
	if s.Groq.BaseURL == "" {
		s.Groq.BaseURL = d.Groq.BaseURL
	}
	if s.Groq.SecretKey == "" {
		s.Groq.SecretKey = d.Groq.SecretKey
	}
	if s.Paths.Theme == "" {
		s.Paths.Theme = d.Paths.Theme
	}
	if s.Paths.Secrets == "" {
		s.Paths.Secrets = d.Paths.Secrets
	}
	if s.Logging.Level == "" {
		s.Logging.Level = d.Logging.Level
	}
	if s.Logging.Format == "" {
		s.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - MISTERIO_ADDR: overrides server.addr
//   - MISTERIO_SESSION_IDLE_TIMEOUT_SECS: overrides server.session_idle_timeout_secs
//   - MISTERIO_BASE_URL: overrides groq.base_url
//   - MISTERIO_THEME: overrides paths.theme
//   - MISTERIO_SECRETS: overrides paths.secrets
//   - MISTERIO_LOG_LEVEL: overrides logging.level
//   - MISTERIO_LOG_FORMAT: overrides logging.format
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv("MISTERIO_ADDR"); v != "" {
		s.Server.Addr = v
	}
	if v := os.Getenv("MISTERIO_SESSION_IDLE_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Server.SessionIdleTimeoutSecs = n
		}
	}
	if v := os.Getenv("MISTERIO_BASE_URL"); v != "" {
		s.Groq.BaseURL = v
	}
	if v := os.Getenv("MISTERIO_THEME"); v != "" {
		s.Paths.Theme = v
	}
	if v := os.Getenv("MISTERIO_SECRETS"); v != "" {
		s.Paths.Secrets = v
	}
	if v := os.Getenv("MISTERIO_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	if v := os.Getenv("MISTERIO_LOG_FORMAT"); v != "" {
		s.Logging.Format = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the settings and returns any errors.
func (s *Settings) Validate() error {
	var errs ValidateErrors

	if s.Server.SessionIdleTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.session_idle_timeout_secs",
			Message: fmt.Sprintf("must not be negative, got %d", s.Server.SessionIdleTimeoutSecs),
		})
	}

	if s.Groq.BaseURL != "" {
		u, err := url.Parse(s.Groq.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "groq.base_url",
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[/path]", s.Groq.BaseURL),
			})
		}
	}

	if s.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(s.Logging.Level)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "logging.level",
				Message: fmt.Sprintf("unknown level '%s'", s.Logging.Level),
			})
		}
	}

	switch strings.ToLower(s.Logging.Format) {
	case "", "auto", "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: auto, console, json", s.Logging.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
