// Package agentapi provides the HTTP client for the agent runtime's
// memory API. It is the only component that performs network I/O; the
// poller and preview service drive it through the circuit breaker.
package agentapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
)

// Config configures the upstream API client.
type Config struct {
	// BaseURL is the agent runtime base URL, e.g. "http://localhost:3000"
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is sent as X-Api-Key when set (optional for local runtimes)
	APIKey string `json:"api_key" yaml:"api_key"`

	// Timeout bounds each request. The upstream design relied on transport
	// defaults; an explicit timeout prevents a hung connection from
	// stalling error counting indefinitely.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// RequestsPerSecond is a hard global cap on upstream request rate,
	// independent of poller cadence and batch pacing. Zero disables it.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the rate limiter burst size (defaults to 1 when capped)
	Burst int `json:"burst" yaml:"burst"`
}

// DefaultConfig returns sensible client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:3000",
		Timeout:           15 * time.Second,
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "agentapi", "Validate", "base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.WrapInvalid(err, "agentapi", "Validate", "base_url parse")
	}
	if c.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "agentapi", "Validate",
			fmt.Sprintf("timeout cannot be negative, got %v", c.Timeout))
	}
	if c.RequestsPerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "agentapi", "Validate",
			fmt.Sprintf("requests_per_second cannot be negative, got %v", c.RequestsPerSecond))
	}
	return nil
}

// StatusError carries the HTTP status code of a failed request so the
// circuit breaker can distinguish rate limiting from generic errors.
type StatusError struct {
	Code int
	Err  error
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error
func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client calls the agent runtime's memory API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metric.Metrics
	instanceID string
}

// Option is a functional option for configuring the Client
type Option func(*Client)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request counts and latencies through the core metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the underlying HTTP client (used in tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new upstream API client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     slog.Default(),
		instanceID: uuid.NewString(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// InstanceID returns the client instance identifier used for request correlation.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// FetchMemories retrieves conversation memories for an agent.
// GET {base}/api/memory/{agentId}/memories?tableName&roomId&channelId&includeEmbedding
func (c *Client) FetchMemories(ctx context.Context, agentID string, opts MemoriesOptions) ([]Memory, error) {
	if agentID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "agentapi", "FetchMemories", "agent id required")
	}

	endpoint := fmt.Sprintf("%s/api/memory/%s/memories", c.baseURL, url.PathEscape(agentID))
	query := url.Values{}
	if opts.TableName != "" {
		query.Set("tableName", opts.TableName)
	}
	if opts.RoomID != "" {
		query.Set("roomId", opts.RoomID)
	}
	if opts.ChannelID != "" {
		query.Set("channelId", opts.ChannelID)
	}
	query.Set("includeEmbedding", strconv.FormatBool(opts.IncludeEmbedding))

	return c.getMemories(ctx, "memories", endpoint+"?"+query.Encode())
}

// FetchConversation retrieves the memories of a single conversation,
// newest last. Conversations map onto rooms in the upstream data model.
func (c *Client) FetchConversation(ctx context.Context, agentID, conversationID string) ([]Memory, error) {
	if conversationID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "agentapi", "FetchConversation", "conversation id required")
	}
	return c.FetchMemories(ctx, agentID, MemoriesOptions{
		TableName: "messages",
		RoomID:    conversationID,
	})
}

// getMemories performs the request and decodes the standard envelope.
func (c *Client) getMemories(ctx context.Context, resource, rawURL string) ([]Memory, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.WrapTransient(err, "agentapi", "getMemories", "rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "agentapi", "getMemories", "build request")
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Client-Id", c.instanceID)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordRequestDuration(resource, elapsed)
	}

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "transport_error")
		}
		c.logger.Debug("upstream request failed",
			"request_id", requestID,
			"error", err)
		return nil, errors.WrapTransient(err, "agentapi", "getMemories", "http request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "rate_limited")
		}
		retryAfter := resp.Header.Get("Retry-After")
		c.logger.Warn("upstream rate limit",
			"request_id", requestID,
			"retry_after", retryAfter)
		return nil, &StatusError{
			Code: resp.StatusCode,
			Err:  errors.WrapTransient(errors.ErrRateLimited, "agentapi", "getMemories", "status check"),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "error")
		}
		return nil, &StatusError{
			Code: resp.StatusCode,
			Err: errors.WrapTransient(errors.ErrUpstreamUnavailable, "agentapi", "getMemories",
				fmt.Sprintf("status %d", resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "read_error")
		}
		return nil, errors.WrapTransient(err, "agentapi", "getMemories", "read body")
	}

	var envelope memoriesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "malformed")
		}
		c.logger.Warn("malformed upstream response",
			"request_id", requestID,
			"error", err)
		return nil, errors.WrapInvalid(errors.ErrMalformedResponse, "agentapi", "getMemories", "decode envelope")
	}
	if !envelope.Success {
		if c.metrics != nil {
			c.metrics.RecordRequest(resource, "malformed")
		}
		return nil, errors.WrapInvalid(errors.ErrMalformedResponse, "agentapi", "getMemories",
			fmt.Sprintf("upstream reported failure: %s", envelope.Error))
	}

	if c.metrics != nil {
		c.metrics.RecordRequest(resource, "success")
	}
	return envelope.Data.Memories, nil
}
