// Package xapi implements domain.Adapter over the X API v2 with OAuth 2.0
// user-context tokens.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/httpx"
)

const defaultBaseURL = "https://api.x.com"

// Scopes requested when refreshing a user token.
var Scopes = []string{"tweet.read", "tweet.write", "users.read", "like.write", "follows.write", "offline.access"}

// Config holds the OAuth 2.0 user-context credentials.
type Config struct {
	BaseURL      string
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string

	// TokenExpiry, when set, lets the token source refresh the access token
	// once it passes. A zero expiry means the access token is used as is.
	TokenExpiry time.Time
}

// Client is an X API v2 client.
type Client struct {
	baseURL string
	http    *httpx.Client
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	meID string
}

var _ domain.Adapter = (*Client)(nil)

// NewClient builds a client whose transport attaches and, when possible,
// refreshes the bearer token.
func NewClient(ctx context.Context, cfg Config, httpCfg httpx.Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	hc := oauth2.NewClient(ctx, TokenSource(ctx, cfg))
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpx.NewWithHTTPClient(hc, httpCfg),
		logger:  logger.With("platform", domain.PlatformX),
		now:     time.Now,
	}
}

// TokenSource returns a refreshing source when a client ID and refresh token
// are configured, otherwise a static one.
func TokenSource(ctx context.Context, cfg Config) oauth2.TokenSource {
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cfg.TokenExpiry,
	}
	if cfg.ClientID == "" || cfg.RefreshToken == "" {
		return oauth2.StaticTokenSource(token)
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://x.com/i/oauth2/authorize",
			TokenURL:  strings.TrimRight(base, "/") + "/2/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	return oc.TokenSource(ctx, token)
}

// Platform implements domain.Adapter.
func (c *Client) Platform() domain.Platform {
	return domain.PlatformX
}

// apiError is the v2 problem body; older endpoints use the errors array.
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	} `json:"errors"`
}

func (e apiError) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Title != "" {
		return e.Title
	}
	for _, item := range e.Errors {
		for _, s := range []string{item.Detail, item.Message, item.Title} {
			if s != "" {
				return s
			}
		}
	}
	return ""
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, op, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, op, path string, body, result any) error {
	return c.do(ctx, op, http.MethodPost, path, body, result)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return domain.NewPlatformError(domain.KindAuth, domain.PlatformX, op, fmt.Errorf("refresh token: %w", err))
		}
		return domain.NewPlatformError(domain.KindPlatform, domain.PlatformX, op, err)
	}
	if !resp.OK() {
		return c.statusError(op, resp)
	}

	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return domain.NewPlatformError(domain.KindPlatform, domain.PlatformX, op, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

func (c *Client) statusError(op string, resp *httpx.Response) error {
	var ae apiError
	_ = json.Unmarshal(resp.Body, &ae)
	msg := ae.message()
	if msg == "" {
		msg = httpx.Snippet(resp.Body)
	}

	kind := domain.KindPlatform
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = domain.KindAuth
	case http.StatusForbidden:
		// 403 also covers per-request refusals such as duplicate content.
		if !strings.Contains(strings.ToLower(msg), "duplicate") {
			kind = domain.KindAuth
		}
	case http.StatusTooManyRequests:
		kind = domain.KindRateLimited
	case http.StatusNotFound:
		kind = domain.KindNotFound
	}

	pe := domain.NewPlatformError(kind, domain.PlatformX, op, errors.New(msg))
	pe.Status = resp.StatusCode
	if kind == domain.KindRateLimited {
		pe.RetryAfter = httpx.RetryAfter(resp.Header, c.now(), "x-rate-limit-reset", "Retry-After")
	}
	return pe
}
