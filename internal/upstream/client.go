// Package upstream fetches the content catalogue from the ukr-mova.in.ua API.
package upstream

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

	"github.com/google/uuid"

	"mova-bot/pkg/mova"
)

const (
	// DefaultBaseURL is the public content host.
	DefaultBaseURL = "https://ukr-mova.in.ua"

	defaultTimeout  = 10 * time.Second
	maxResponseBody = 16 << 20
	apiPath         = "/api-new"
	routeCategories = "categories"
	routeExamples   = "examples"
)

// Client fetches categories and examples. It never retries; callers decide.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(client *Client) {
		client.userAgent = strings.TrimSpace(userAgent)
	}
}

// New creates a client for baseURL, falling back to DefaultBaseURL when empty.
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("new upstream client: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("new upstream client: unsupported scheme %q", parsed.Scheme)
	}

	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		userAgent:  "mova-bot",
	}
	for _, option := range options {
		option(client)
	}
	client.logger = client.logger.With("component", "upstream")

	return client, nil
}

// BaseURL returns the content host, which also serves example images.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchCategories returns every category in upstream order.
func (c *Client) FetchCategories(ctx context.Context) ([]mova.Category, error) {
	var categories []mova.Category
	if err := c.fetch(ctx, routeCategories, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []mova.Category{}
	}

	return categories, nil
}

// FetchExamples returns every example in upstream order.
func (c *Client) FetchExamples(ctx context.Context) ([]mova.Example, error) {
	var examples []mova.Example
	if err := c.fetch(ctx, routeExamples, &examples); err != nil {
		return nil, err
	}
	if examples == nil {
		examples = []mova.Example{}
	}

	return examples, nil
}

func (c *Client) fetch(ctx context.Context, route string, target any) error {
	op := "fetch " + route
	requestID := uuid.NewString()

	endpoint := c.baseURL.JoinPath(apiPath)
	endpoint.RawQuery = url.Values{"route": []string{route}}.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return &mova.ContentError{Kind: mova.ContentErrorSourceUnavailable, Op: op, Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.WarnContext(ctx, "upstream request failed", "route", route, "request_id", requestID, "error", err)
		return &mova.ContentError{Kind: mova.ContentErrorSourceUnavailable, Op: op, Err: err}
	}
	defer response.Body.Close()

	c.logger.DebugContext(ctx, "upstream response",
		"route", route,
		"request_id", requestID,
		"status", response.StatusCode,
		"elapsed", time.Since(started),
	)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseBody))
		return &mova.ContentError{
			Kind: mova.ContentErrorSourceUnavailable,
			Op:   op,
			Err:  fmt.Errorf("unexpected status %d", response.StatusCode),
		}
	}

	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseBody)).Decode(target); err != nil {
		return &mova.ContentError{
			Kind: mova.ContentErrorSourceUnavailable,
			Op:   op,
			Err:  fmt.Errorf("decode body: %w", err),
		}
	}

	return nil
}
