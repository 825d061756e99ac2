// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lollms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the lollms client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotConfigured
	ErrTypeUnreachable
	ErrTypeTimeout
	ErrTypeUnauthorized
	ErrTypeServer
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotConfigured = &ClientError{Type: ErrTypeNotConfigured, Message: "no server host configured"}
	ErrUnreachable   = &ClientError{Type: ErrTypeUnreachable, Message: "lollms-server is not reachable"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrUnauthorized  = &ClientError{Type: ErrTypeUnauthorized, Message: "invalid or missing API key"}
)

// IsUnreachable checks if an error indicates the server cannot be reached.
func IsUnreachable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeUnreachable
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the lollms client.
type ClientConfig struct {
	// BaseURL is the lollms-server base URL (e.g. http://localhost:9601)
	BaseURL string

	// APIKey is sent as the X-API-Key header when non-empty
	APIKey string

	// Timeout for generation requests (default: 120s)
	Timeout time.Duration

	// BindingName is the default binding override (optional)
	BindingName string

	// ModelName is the default model override (optional)
	ModelName string

	// RequestsPerSecond throttles outbound requests (default: 4)
	RequestsPerSecond float64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://localhost:9601",
		Timeout:           120 * time.Second,
		RequestsPerSecond: 4,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the lollms-server REST API.
//
// The Client is safe for concurrent use. Reconfiguring the connection
// (Reconfigure) bumps an internal generation counter that consumers such as
// the size estimator use to invalidate cached server-derived values.
type Client struct {
	// mu guards config and generation; Reconfigure may run from the
	// config watcher while a generation is in flight
	mu         sync.RWMutex
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	// generation increments on every Reconfigure call
	generation uint64
}

// NewClient creates a new lollms client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 4
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
}

// Reconfigure updates the server address and credential in place.
// Cached values derived from the previous connection must be discarded;
// callers detect this via Generation().
func (c *Client) Reconfigure(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.BaseURL = baseURL
	c.config.APIKey = apiKey
	c.generation++
}

// Generation returns the reconfiguration counter. It changes whenever the
// server address or credential changes.
func (c *Client) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.BaseURL
}

// IsConfigured reports whether a server host is set.
func (c *Client) IsConfigured() bool {
	return c.BaseURL() != ""
}

// connection snapshots the address and credential for one request. The
// request keeps the pair it started with even if a reconfiguration lands
// mid-flight.
func (c *Client) connection() (baseURL, apiKey string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.BaseURL, c.config.APIKey
}

// overrides snapshots the binding and model defaults.
func (c *Client) overrides() (binding, model string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.BindingName, c.config.ModelName
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do performs an HTTP request with throttling, auth header, and error mapping.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	baseURL, apiKey := c.connection()
	if baseURL == "" {
		return nil, ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ClientError{Type: ErrTypeTimeout, Message: "request throttled", Cause: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnreachable, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrTimeout
		}
		return nil, ErrUnreachable
	}

	return resp, nil
}

// decodeError reads a non-2xx response body into a ClientError. The server
// returns either a JSON {detail} object or a plain text message.
func decodeError(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return &ClientError{Type: ErrTypeServer, Message: body.Detail}
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "request failed: " + resp.Status
	}
	return &ClientError{Type: ErrTypeServer, Message: msg}
}

// decodeJSON decodes a 2xx response body into out.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// =============================================================================
// HEALTH AND INTROSPECTION
// =============================================================================

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result HealthResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ContextLength queries the default context length of the active text
// generation binding via GET /get_default_ttt_context_length.
func (c *Client) ContextLength(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/get_default_ttt_context_length", nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	var result ContextLengthResponse
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	if result.ContextLength <= 0 {
		return 0, &ClientError{Type: ErrTypeInvalidResponse, Message: "server reported non-positive context length"}
	}
	return result.ContextLength, nil
}

// ListBindings queries GET /list_active_bindings.
func (c *Client) ListBindings(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/list_active_bindings", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result []string
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListModels queries GET /list_available_models/{binding}.
func (c *Client) ListModels(ctx context.Context, binding string) ([]ModelInfo, error) {
	if binding == "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "binding name is required"}
	}

	resp, err := c.do(ctx, http.MethodGet, "/list_available_models/"+url.PathEscape(binding), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result []ModelInfo
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate performs POST /generate and validates the response shape.
// Binding and model overrides from the client config are applied when the
// request leaves them empty.
func (c *Client) Generate(ctx context.Context, req *GenerationRequest) (*GenerateResponse, error) {
	if req.GenerationType == "" {
		req.GenerationType = GenerationTypeTTT
	}
	binding, model := c.overrides()
	if req.BindingName == "" {
		req.BindingName = binding
	}
	if req.ModelName == "" {
		req.ModelName = model
	}

	resp, err := c.do(ctx, http.MethodPost, "/generate", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result GenerateResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}

	// Schema validation at the boundary: an empty or untyped output array is
	// a protocol error, not a usable result.
	if len(result.Output) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "response contains no output items"}
	}
	for _, item := range result.Output {
		if item.Type != OutputTypeText && item.Type != OutputTypeImage {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "unknown output item type: " + item.Type}
		}
	}

	return &result, nil
}
