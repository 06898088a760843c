// Package apiclient implements the outbound HTTP adapter for external
// providers. It issues single GET requests with standard headers and parses
// JSON bodies; it never retries, that is the resilience layer's job.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	verrors "github.com/bondalen/vuege/errors"
)

// defaultUserAgent identifies the platform to external providers.
const defaultUserAgent = "Vuege/1.0"

// maxBodyBytes caps how much of a provider response is read. Provider
// payloads are small; anything larger is malformed or hostile.
const maxBodyBytes = 4 << 20

// Config contains the settings for one provider client.
type Config struct {
	// BaseURL is the provider's base URL, e.g. "https://api.opencagedata.com".
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. The query parameter name carrying it
	// differs per provider, so services pass it explicitly per call.
	APIKey string `yaml:"api_key"`

	// UserAgent overrides the default User-Agent header when set.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// Validate checks the client configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return verrors.WrapInvalid(verrors.ErrMissingConfig, "apiclient", "Validate", "base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "apiclient", "Validate",
			fmt.Sprintf("base_url %q is not a valid URL", c.BaseURL))
	}
	return nil
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Unwrap lets callers match with errors.Is(err, verrors.ErrUnexpectedStatus).
func (e *StatusError) Unwrap() error {
	return verrors.ErrUnexpectedStatus
}

// Client issues GET requests against one provider's base URL.
type Client struct {
	name       string
	baseURL    *url.URL
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for a named provider. The http.Client carries no
// request timeout of its own; cancellation is context-driven so the policy
// layer's deadline governs the whole call.
func New(name string, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, verrors.WrapInvalid(err, "apiclient", "New", "base URL parse")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		name:      name,
		baseURL:   base,
		apiKey:    cfg.APIKey,
		userAgent: ua,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		logger: logger.With("component", "apiclient", "provider", name),
	}, nil
}

// Name returns the provider name this client talks to.
func (c *Client) Name() string {
	return c.name
}

// APIKey returns the configured API key for this provider.
func (c *Client) APIKey() string {
	return c.apiKey
}

// GetJSON issues a GET against path with the given query parameters and
// decodes the JSON body. Non-2xx responses and transport failures are
// returned as transient provider-call errors.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	resp, err := c.do(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	body := make(map[string]any)
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, verrors.WrapTransient(err, "apiclient", "GetJSON", "response decode")
	}
	return body, nil
}

// Ping issues a bodiless GET used for health probes and returns the HTTP
// status code. A non-2xx status is an error, but the code is still
// returned so the monitor can record it.
func (c *Client) Ping(ctx context.Context, path string, query url.Values) (int, error) {
	resp, err := c.do(ctx, path, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, verrors.WrapTransient(
			&StatusError{StatusCode: resp.StatusCode},
			"apiclient", "Ping", "health probe")
	}
	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, verrors.WrapInvalid(err, "apiclient", "do", "request build")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Request failed", "path", path, "error", err)
		return nil, verrors.WrapTransient(err, "apiclient", "do", "request")
	}

	c.logger.Debug("Request completed",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Keep a short body excerpt for the logs; it is not surfaced to callers
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.Debug("Provider returned error status",
		"status", resp.StatusCode,
		"body", string(excerpt))

	return verrors.WrapTransient(
		&StatusError{StatusCode: resp.StatusCode, Body: string(excerpt)},
		"apiclient", "GetJSON", "provider call")
}
