// Package upstream provides HTTP clients for the pools and matches services.
//
// Each call makes a single attempt bounded by the client timeout. Failures are
// returned as *Error values classified by the sentinels in errors.go.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nice2meet/usermatch/internal/metrics"
)

// ClientConfig configures a service client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    metrics.Recorder
}

// Client issues JSON requests against one upstream service.
type Client struct {
	service    string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	metrics    metrics.Recorder
}

// NewClient validates cfg and returns a client labelled with service.
func NewClient(service string, cfg ClientConfig) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse %s service url: %w", service, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid %s service url: %q", service, base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(base, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		metrics:    recorder,
	}, nil
}

// Service returns the label used in errors and metrics.
func (c *Client) Service() string {
	return c.service
}

// Ping checks that the service answers its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, "ping", http.MethodGet, "/", nil, nil, nil)
}

// doJSON performs one request. body is marshalled when non-nil and the response
// is decoded into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.call(ctx, op, method, path, query, body, out, false)
}

// doJSONRequired is doJSON for calls whose success response must carry a
// non-null JSON value. An empty or null body is an unexpected format.
func (c *Client) doJSONRequired(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.call(ctx, op, method, path, query, body, out, true)
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out any, required bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.do(ctx, op, method, path, query, body, out, required)
	c.metrics.ObserveUpstreamCall(c.service, op, outcomeOf(err), time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, required bool) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return c.fail(op, 0, "", ErrUnavailable, fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return c.fail(op, 0, "", ErrUnavailable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(op, 0, "", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail(op, resp.StatusCode, "", ErrUnavailable, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return c.fail(op, resp.StatusCode, msg, kindForStatus(resp.StatusCode), nil)
	}

	trimmed := bytes.TrimSpace(data)
	if out != nil && required && (len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))) {
		return c.fail(op, resp.StatusCode, "", ErrUnavailable, fmt.Errorf("%w: empty or null body", ErrUnexpectedFormat))
	}
	if out == nil || len(trimmed) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.fail(op, resp.StatusCode, "", ErrUnavailable, fmt.Errorf("%w: %v", ErrUnexpectedFormat, err))
	}
	return nil
}

func (c *Client) fail(op string, status int, msg string, kind, err error) *Error {
	return &Error{
		Service:    c.service,
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Kind:       kind,
		Err:        err,
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrForbidden):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeUnavailable
	}
}

// segment escapes an id for use as a single path segment.
func segment(id string) string {
	return url.PathEscape(id)
}
