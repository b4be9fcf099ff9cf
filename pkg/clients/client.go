// Package clients implements the REST clients for the services a conversion consumes.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	maxErrorBody = 512
)

// TokenSource hands out the bearer credential for outbound calls
type TokenSource interface {
	Token(ctx context.Context) (*credentials.Credential, error)
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// Client is a JSON REST client for one service. The bearer credential is taken
// from the request context when a worker put one there, else from the token source.
type Client struct {
	service string
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  ectologger.Logger
}

// NewClient creates a new service client. tokens may be nil for unauthenticated services.
func NewClient(service, baseURL string, tokens TokenSource, cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		tokens:  tokens,
		logger:  logger,
	}
}

// Service returns the service name used in logs and metrics
func (c *Client) Service() string {
	return c.service
}

// Do sends a JSON request and decodes a JSON response into out when out is non-nil.
// Non-2xx responses are returned as *httperror.HTTPError carrying the status code.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	data, err := c.DoRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response from %s: %w", c.service, path, err)
	}
	return nil
}

// DoRaw sends a JSON request and returns the raw response body
func (c *Client) DoRaw(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "Client."+c.service+"."+method)
	defer span.End()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", c.service, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordHTTPRequest(c.service, method, "error", duration.Seconds())
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", method, endpoint)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	metrics.RecordHTTPRequest(c.service, method, strconv.Itoa(resp.StatusCode), duration.Seconds())

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(data), MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)", method, endpoint, resp.StatusCode, duration)

	if !IsSuccessStatus(resp.StatusCode) {
		herr := httperror.NewHTTPErrorf(resp.StatusCode, "%s %s %s returned %d: %s",
			c.service, method, path, resp.StatusCode, truncate(string(data), maxErrorBody))
		tracing.RecordError(span, herr)
		return nil, herr
	}
	return data, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	// a worker's credential can expire between its refreshes
	cred, ok := credentials.FromContext(ctx)
	if ok && (c.tokens == nil || !cred.IsExpired(time.Now(), 0)) {
		req.Header.Set("Authorization", cred.AuthorizationHeader())
		return nil
	}
	if c.tokens == nil {
		return nil
	}
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain %s credential: %w", c.service, err)
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	return nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsNotFound reports whether err is a 404 from a service client
func IsNotFound(err error) bool {
	var he *httperror.HTTPError
	return errors.As(err, &he) && httperror.GetStatusCode(he) == http.StatusNotFound
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func escape(segment string) string {
	return url.PathEscape(strings.TrimSpace(segment))
}
