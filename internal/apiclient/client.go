// Package apiclient wraps the travel API with shared defaults: base URL, JSON
// headers, an optional bearer token and a chain of error interceptors.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// ErrorInterceptor sees every failed request before the caller does and
// returns the error the caller receives.
type ErrorInterceptor func(ctx context.Context, err *internal.APIError) *internal.APIError

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.RWMutex
	headers      http.Header
	interceptors []ErrorInterceptor

	interceptorsOnce sync.Once
}

func NewClient(config Config, lg *slog.Logger) *Client {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: httpClient,
		logger:     lg,
		headers:    headers,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken sets the default bearer token; an empty token removes it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != "" {
		c.headers.Set("Authorization", "Bearer "+token)
	} else {
		c.headers.Del("Authorization")
	}
}

// DefaultHeader returns the current value of a default header.
func (c *Client) DefaultHeader(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(name)
}

// Use appends an error interceptor.
func (c *Client) Use(interceptor ErrorInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = append(c.interceptors, interceptor)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Do performs one request. Any failure is returned as *internal.APIError after
// passing through the interceptor chain; a 2xx body is decoded into out.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return c.intercept(ctx, internal.NewTransportError(err))
	}

	lg := logger.FromOr(ctx, c.logger)
	start := time.Now()
	logRequest(lg, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		lg.Debug("api request failed", "request_id", req.Header.Get(HeaderRequestID), "error", err)
		return c.intercept(ctx, internal.NewTransportError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.intercept(ctx, internal.NewTransportError(fmt.Errorf("failed to read response: %w", err)))
	}

	logResponse(lg, req, resp.StatusCode, len(respBody), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.intercept(ctx, internal.NewHTTPError(resp.StatusCode, respBody))
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return internal.NewTransportError(fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	c.mu.RLock()
	for name, values := range c.headers {
		req.Header[name] = append([]string(nil), values...)
	}
	c.mu.RUnlock()

	requestID := internal.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(HeaderRequestID, requestID)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

func (c *Client) intercept(ctx context.Context, apiErr *internal.APIError) error {
	c.mu.RLock()
	interceptors := append([]ErrorInterceptor(nil), c.interceptors...)
	c.mu.RUnlock()

	for _, interceptor := range interceptors {
		if next := interceptor(ctx, apiErr); next != nil {
			apiErr = next
		}
	}
	return apiErr
}
