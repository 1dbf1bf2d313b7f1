// Package client provides the HTTP transport for the loglens analysis service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raphaelgruber/loglens/internal/httputil"
	"github.com/raphaelgruber/loglens/internal/metrics"
)

const (
	// DefaultBaseURL matches the service's development server.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout bounds a single request, uploads included.
	DefaultTimeout = 2 * time.Minute

	defaultUserAgent = "loglens/0.1"

	// slowRequestThreshold is the duration above which requests are logged at WARN level.
	slowRequestThreshold = 2 * time.Second

	// maxErrorBodyLen bounds how much of an unparseable error body ends up in messages.
	maxErrorBodyLen = 200
)

// Config holds connection settings for the service.
type Config struct {
	BaseURL    string
	Token      string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the log-analysis service. It has no state beyond its
// configuration and is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records per-operation latency into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// New creates a client. An empty BaseURL falls back to DefaultBaseURL and a
// zero Timeout to DefaultTimeout.
func New(cfg Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		userAgent:  userAgent,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/raphaelgruber/loglens/internal/client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken replaces the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// request describes one call to the service.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	retry       bool
	// sink receives a 2xx body as is instead of decoding it.
	sink io.Writer
}

// errorBody is the service's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do executes r and decodes a 2xx JSON body into out (if non-nil).
// Transport failures become *NetworkError, everything else *ServiceError.
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "loglens.client."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("loglens.path", r.path),
		),
	)
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		c.metrics.RecordTiming(r.op, duration, err)
		c.logCall(r, duration, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var resp *http.Response
	if r.retry {
		resp, err = httputil.DoWithRetry(ctx, c.httpClient, req, c.maxRetries)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		return &NetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if ok && r.sink != nil {
		if _, err := io.Copy(r.sink, resp.Body); err != nil {
			return &NetworkError{Op: r.op, Err: fmt.Errorf("read response: %w", err)}
		}
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: r.op, Err: fmt.Errorf("read response: %w", err)}
	}

	if !ok {
		return &ServiceError{
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ServiceError{
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response body: %w", err),
		}
	}
	return nil
}

// errorMessage extracts the service's error text from a failed response.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), maxErrorBodyLen)
}

// logCall logs a finished request. Slow requests are logged at WARN level.
func (c *Client) logCall(r request, duration time.Duration, err error) {
	attrs := []any{
		"op", r.op,
		"method", r.method,
		"path", r.path,
		"duration_ms", duration.Milliseconds(),
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		c.logger.Debug("request cancelled", attrs...)
	case err != nil:
		attrs = append(attrs, "error", err.Error())
		c.logger.Warn("request failed", attrs...)
	case duration > slowRequestThreshold:
		c.logger.Warn("slow request", attrs...)
	default:
		c.logger.Debug("request completed", attrs...)
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
