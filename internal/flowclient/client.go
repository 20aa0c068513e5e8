// Package flowclient relays chat turns to an external flow-engine HTTP
// API. One process shares one Client; construction is cheap but the
// client carries retry and connection-status state that should not be
// duplicated.
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultHTTPTimeout = 2 * time.Minute
	healthCheckTimeout = 5 * time.Second

	apiKeyHeader = "x-api-key"
)

var (
	// ErrUnavailable indicates the flow engine could not be reached or
	// kept failing after all retries. Retryable from the caller's side.
	ErrUnavailable = errors.New("flow engine unavailable")

	// ErrRejected indicates the flow engine rejected the request with a
	// client error. Retrying the same request will not help.
	ErrRejected = errors.New("flow engine rejected request")
)

// Config holds flow-engine connection settings.
type Config struct {
	// BaseURL of the flow engine, without trailing slash.
	BaseURL string
	// FlowID selects the deployed flow to run. Required.
	FlowID string
	// APIKey is sent as the x-api-key header when set.
	APIKey string

	// MaxRetries bounds delivery attempts. Zero means the default of 3.
	MaxRetries int
	// RetryDelay is the base backoff delay, doubled per attempt.
	RetryDelay time.Duration
}

// Turn is one prior exchange forwarded as conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the flow engine's answer to one chat turn.
type Response struct {
	// Text is the assistant reply extracted from the engine payload.
	Text string
	// Raw is the full decoded engine payload, for callers that persist
	// engine metadata alongside the reply.
	Raw map[string]any
}

// Client talks to one flow engine. Safe for concurrent use.
type Client struct {
	baseURL    string
	flowID     string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
	defaultErr    error
)

// Default returns the process-wide client, creating it on first call.
// Later calls ignore cfg and return the same instance.
func Default(cfg Config, logger *slog.Logger) (*Client, error) {
	defaultOnce.Do(func() {
		defaultClient, defaultErr = New(cfg, logger)
	})
	return defaultClient, defaultErr
}

// New creates a Client. Use Default for the shared instance.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL not configured", ErrRejected)
	}
	if cfg.FlowID == "" {
		return nil, fmt.Errorf("%w: flow ID not configured", ErrRejected)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		flowID:     cfg.FlowID,
		apiKey:     cfg.APIKey,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
	}, nil
}

type runPayload struct {
	InputValue          string `json:"input_value"`
	InputType           string `json:"input_type"`
	OutputType          string `json:"output_type"`
	SessionID           string `json:"session_id"`
	ConversationHistory string `json:"conversation_history,omitempty"`
}

// Process sends one chat turn to the flow engine and returns the reply.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff; 4xx responses fail immediately with ErrRejected. The context
// bounds the whole operation including backoff sleeps.
func (c *Client) Process(ctx context.Context, message, sessionID string, history []Turn) (*Response, error) {
	payload := runPayload{
		InputValue: message,
		InputType:  "chat",
		OutputType: "chat",
		SessionID:  sessionID,
	}
	if len(history) > 0 {
		encoded, err := json.Marshal(history)
		if err != nil {
			return nil, fmt.Errorf("encoding conversation history: %w", err)
		}
		payload.ConversationHistory = string(encoded)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding flow request: %w", err)
	}

	runURL := fmt.Sprintf("%s/api/v1/run/%s", c.baseURL, c.flowID)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.attempt(ctx, runURL, body)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("flow engine request failed",
			"attempt", attempt, "max_attempts", c.maxRetries, "error", err)

		if attempt < c.maxRetries {
			// Exponential backoff, bounded by the caller's context.
			wait := c.retryDelay * (1 << (attempt - 1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %w", ErrUnavailable, c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building flow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Decoded below.
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(data, 200))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON response: %w", ErrUnavailable, err)
	}
	return &Response{Text: extractText(raw), Raw: raw}, nil
}

// CheckConnection reports whether the flow engine is reachable. Used by
// the readiness endpoint; failures here do not stop the server, chat
// requests just degrade to errors until the engine returns.
func (c *Client) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status, err := c.get(ctx, c.baseURL+"/api/v1/health")
	if err == nil && status == http.StatusOK {
		return nil
	}

	// Some deployments mount the API under a subpath and have no health
	// endpoint; a reachable base URL still counts.
	status, err = c.get(ctx, c.baseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if status == http.StatusOK || status == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("%w: status %d", ErrUnavailable, status)
}

func (c *Client) get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// extractText pulls the assistant reply out of the engine payload. The
// run endpoint nests it at outputs[0].outputs[0].results.message.text;
// older deployments return flat "result" or "message" fields.
func extractText(raw map[string]any) string {
	if outputs, ok := raw["outputs"].([]any); ok && len(outputs) > 0 {
		if outer, ok := outputs[0].(map[string]any); ok {
			if inner, ok := outer["outputs"].([]any); ok && len(inner) > 0 {
				if entry, ok := inner[0].(map[string]any); ok {
					if results, ok := entry["results"].(map[string]any); ok {
						if msg, ok := results["message"].(map[string]any); ok {
							if text, ok := msg["text"].(string); ok {
								return text
							}
						}
					}
				}
			}
		}
	}
	if result, ok := raw["result"].(string); ok {
		return result
	}
	switch msg := raw["message"].(type) {
	case string:
		return msg
	case map[string]any:
		if text, ok := msg["text"].(string); ok {
			return text
		}
	}
	if text, ok := raw["text"].(string); ok {
		return text
	}
	return ""
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
