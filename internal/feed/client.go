// Package feed talks to the remote JSON feed under one request budget,
// shared with other processes through a Budget.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"feedmirror/internal/clock"
	"feedmirror/internal/payload"
	"feedmirror/internal/types"
)

const (
	DefaultCooldown = 60 * time.Second
	DefaultTimeout  = 20 * time.Second

	apiKeyHeader = "X-API-Key"
	maxBodyBytes = 10 << 20
	excerptLen   = 200
)

// Endpoint addresses one collection of the feed.
type Endpoint struct {
	BaseURL string
	Path    string
	APIKey  string
}

func (e Endpoint) missing() []string {
	var missing []string
	if strings.TrimSpace(e.BaseURL) == "" {
		missing = append(missing, "base_url")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	return missing
}

// Budget is the request window kept outside the process, usually by the
// state store.
type Budget interface {
	ReserveRequest(ctx context.Context, now time.Time, cooldown time.Duration) (time.Duration, error)
}

type Options struct {
	Budget     Budget
	Cooldown   time.Duration
	Timeout    time.Duration
	Clock      clock.Clock
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client performs at most one request per cooldown window, across every
// caller sharing it. Callers queue on the exclusive section in arrival
// order.
type Client struct {
	httpClient *http.Client
	clock      clock.Clock
	cooldown   time.Duration
	budget     Budget
	logger     *zap.Logger

	sem chan struct{}

	mu            sync.Mutex
	lastRequestAt time.Time
}

func NewClient(opts Options) *Client {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		cooldown:   opts.Cooldown,
		budget:     opts.Budget,
		logger:     opts.Logger,
		sem:        make(chan struct{}, 1),
	}
}

// LastRequestAt returns the start time of the last request that went out.
func (c *Client) LastRequestAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequestAt
}

// Fetch issues one GET against the endpoint. While the cooldown window is
// open it returns *types.CooldownError without touching the network.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, params url.Values) (payload.Value, error) {
	if missing := ep.missing(); len(missing) > 0 {
		return payload.Value{}, &types.ConfigIncompleteError{Missing: missing}
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return payload.Value{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	now := c.clock.Now()
	c.mu.Lock()
	if !c.lastRequestAt.IsZero() {
		if elapsed := now.Sub(c.lastRequestAt); elapsed < c.cooldown {
			c.mu.Unlock()
			return payload.Value{}, &types.CooldownError{Remaining: c.cooldown - elapsed}
		}
	}
	c.mu.Unlock()

	if c.budget != nil {
		remaining, err := c.budget.ReserveRequest(ctx, now, c.cooldown)
		if err != nil {
			return payload.Value{}, err
		}
		if remaining > 0 {
			return payload.Value{}, &types.CooldownError{Remaining: remaining}
		}
	}

	c.mu.Lock()
	c.lastRequestAt = now
	c.mu.Unlock()

	return c.do(ctx, ep, params)
}

func (c *Client) do(ctx context.Context, ep Endpoint, params url.Values) (payload.Value, error) {
	target := strings.TrimRight(ep.BaseURL, "/") + "/" + strings.TrimLeft(ep.Path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return payload.Value{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, ep.APIKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("feed request", zap.String("path", ep.Path), zap.String("query", params.Encode()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return payload.Value{}, fmt.Errorf("failed to fetch %s: %w", ep.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return payload.Value{}, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return payload.Value{}, &types.AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return payload.Value{}, &types.ForbiddenError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return payload.Value{}, &types.RemoteRateLimitError{RetryAfter: RetryAfter(resp.Header, body)}
	case resp.StatusCode >= 400:
		return payload.Value{}, &types.HTTPError{Status: resp.StatusCode, Body: excerpt(string(body))}
	}

	v, err := payload.Decode(body)
	if err != nil {
		return payload.Raw(string(body)), nil
	}
	return v, nil
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= excerptLen {
		return body
	}
	return string([]rune(body)[:excerptLen])
}
