// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package groq

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/misterio/internal/model"
	"github.com/jeranaias/misterio/internal/secrets"
)

// Configuration constants for the Groq API.
const (
	// DefaultBaseURL is the base URL for Groq's OpenAI-compatible API.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultSecretKey is the secret store key holding the API key.
	DefaultSecretKey = "CLAVE_API"

	// MaxErrorBodySize caps how much of a failed response body is decoded.
	MaxErrorBodySize = 64 * 1024

	userAgent = "misterio/1.0"
)

// sharedStreamingClient pools connections across turns. It has no overall
// timeout; the turn context bounds each stream.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// ERRORS
// =============================================================================

// Sentinels matched by APIError.Is, keyed on the HTTP status.
var (
	ErrAuthFailed    = errors.New("groq: authentication failed") // 401, 403
	ErrRateLimited   = errors.New("groq: rate limited")          // 429
	ErrModelNotFound = errors.New("groq: model not found")       // 404
)

// AuthConfigurationError means the API key could not be read from the secret
// store. It is fatal: no client is built and no turn can run.
type AuthConfigurationError struct {
	Key string
	Err error
}

func (e *AuthConfigurationError) Error() string {
	return fmt.Sprintf("API key %q unavailable: %v", e.Key, e.Err)
}

// Unwrap returns the secret store error.
func (e *AuthConfigurationError) Unwrap() error {
	return e.Err
}

// APIError represents a non-200 response from the API.
type APIError struct {
	Status  int
	Code    string
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "groq error: " + e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("groq error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("groq error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps HTTP statuses onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// apiErrorResponse represents an error body from the API.
type apiErrorResponse struct {
	Error *struct {
		Code    any    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAPIError converts an error body into an APIError, or nil if the body
// carries no error object.
func (r apiErrorResponse) toAPIError(status int) *APIError {
	if r.Error == nil {
		return nil
	}
	code := ""
	if r.Error.Code != nil {
		code = fmt.Sprint(r.Error.Code)
	}
	return &APIError{Status: status, Code: code, Type: r.Error.Type, Message: r.Error.Message}
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CompletionRequest represents a request to the chat completions endpoint.
type CompletionRequest struct {
	Model    string              `json:"model"`
	Messages []model.WireMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the Groq chat completions API. It is safe for
// concurrent use and is meant to be built once per process.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible endpoint. An
// empty url keeps the default.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client bound to apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: sharedStreamingClient,
		logger:     log.With().Str("component", "groq").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateClient reads the API key stored under key and returns a client bound
// to it. A missing key yields *AuthConfigurationError; other store errors are
// returned unchanged so startup fails loudly.
func CreateClient(store secrets.Store, key string, opts ...Option) (*Client, error) {
	if key == "" {
		key = DefaultSecretKey
	}
	if store == nil {
		return nil, &AuthConfigurationError{Key: key, Err: secrets.ErrNotFound}
	}
	apiKey, err := store.Get(key)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return nil, &AuthConfigurationError{Key: key, Err: err}
		}
		return nil, err
	}
	c := NewClient(apiKey, opts...)
	c.logger.Info().Str("key", key).Str("fingerprint", c.KeyFingerprint()).Str("base_url", c.baseURL).Msg("client ready")
	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key.
// SECURITY: Never exposes API key fragments.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// setHeaders sets the required headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// CreateChatCompletionStream posts a streaming chat completion request and
// returns an iterator over the response chunks. The request is always sent
// with stream enabled. The caller must Close the stream.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req CompletionRequest) (*Stream, error) {
	req.Stream = true

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	c.logger.Debug().Str("method", httpReq.Method).Str("path", httpReq.URL.Path).
		Str("model", req.Model).Int("messages", len(req.Messages)).Msg("api request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &StreamTransportError{Err: fmt.Errorf("request failed: %w", err)}
	}

	c.logger.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("api response")

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	return newStream(resp.Body, c.logger), nil
}

// handleErrorResponse converts HTTP error responses to an *APIError.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if e := apiErr.toAPIError(statusCode); e != nil {
			return e
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &APIError{Status: statusCode, Message: msg}
}
