package bluesky

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

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/httpx"
)

const defaultPDS = "https://bsky.social"

// Config holds the account credentials. Use an App Password, not the account
// password.
type Config struct {
	PDS        string
	Identifier string
	Password   string
}

// Client is a minimal AT Protocol client implementing domain.Adapter for
// Bluesky. It logs in lazily on the first call that needs a session.
type Client struct {
	pds        string
	identifier string
	password   string
	http       *httpx.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	accessJwt string
	did       string
}

var _ domain.Adapter = (*Client)(nil)

// NewClient creates a new Bluesky client. If cfg.PDS is empty, it defaults to
// https://bsky.social.
func NewClient(cfg Config, hc *httpx.Client, logger *slog.Logger) *Client {
	if cfg.PDS == "" {
		cfg.PDS = defaultPDS
	}
	if hc == nil {
		hc = httpx.New(httpx.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pds:        strings.TrimRight(cfg.PDS, "/"),
		identifier: cfg.Identifier,
		password:   cfg.Password,
		http:       hc,
		logger:     logger.With("platform", domain.PlatformBluesky),
		now:        time.Now,
	}
}

// Platform implements domain.Adapter.
func (c *Client) Platform() domain.Platform {
	return domain.PlatformBluesky
}

// Login authenticates with the PDS and stores the session token.
func (c *Client) Login(ctx context.Context) error {
	if c.identifier == "" || c.password == "" {
		return domain.NewPlatformError(domain.KindAuth, domain.PlatformBluesky, "login", errors.New("missing credentials"))
	}
	body := map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	}

	var resp createSessionResponse
	if err := c.send(ctx, "login", http.MethodPost, "com.atproto.server.createSession", nil, body, &resp, false); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.mu.Unlock()
	c.logger.Info("bluesky session created", "handle", resp.Handle)
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.did
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessJwt
}

func (c *Client) ensureSession(ctx context.Context) error {
	if c.token() != "" {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) get(ctx context.Context, op, nsid string, params url.Values, result any) error {
	return c.call(ctx, op, http.MethodGet, nsid, params, nil, result)
}

func (c *Client) post(ctx context.Context, op, nsid string, body, result any) error {
	return c.call(ctx, op, http.MethodPost, nsid, nil, body, result)
}

// call runs an authenticated XRPC request. An expired access token triggers
// one fresh login and a single replay.
func (c *Client) call(ctx context.Context, op, method, nsid string, params url.Values, body, result any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	err := c.send(ctx, op, method, nsid, params, body, result, true)
	var pe *domain.PlatformError
	if errors.As(err, &pe) && pe.Kind == domain.KindAuth && isExpired(pe) {
		c.logger.Info("bluesky session expired, logging in again")
		c.mu.Lock()
		c.accessJwt = ""
		c.mu.Unlock()
		if err := c.Login(ctx); err != nil {
			return err
		}
		return c.send(ctx, op, method, nsid, params, body, result, true)
	}
	return err
}

func (c *Client) send(ctx context.Context, op, method, nsid string, params url.Values, body, result any, auth bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := c.pds + "/xrpc/" + nsid
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	token := ""
	if auth {
		token = c.token()
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	})
	if err != nil {
		return domain.NewPlatformError(domain.KindPlatform, domain.PlatformBluesky, op, err)
	}
	if !resp.OK() {
		return c.apiError(op, resp)
	}

	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return domain.NewPlatformError(domain.KindPlatform, domain.PlatformBluesky, op, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

// apiError maps an XRPC error response onto the platform error taxonomy.
func (c *Client) apiError(op string, resp *httpx.Response) error {
	var xe xrpcError
	_ = json.Unmarshal(resp.Body, &xe)

	kind := domain.KindPlatform
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = domain.KindAuth
	case xe.Error == "ExpiredToken" || xe.Error == "InvalidToken" || xe.Error == "AuthenticationRequired":
		kind = domain.KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = domain.KindRateLimited
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.KindNotFound
	case resp.StatusCode == http.StatusBadRequest && isNotFoundMessage(xe.Message):
		kind = domain.KindNotFound
	}

	msg := xe.Message
	if msg == "" {
		msg = httpx.Snippet(resp.Body)
	}
	pe := domain.NewPlatformError(kind, domain.PlatformBluesky, op, fmt.Errorf("%s: %s", xe.Error, msg))
	pe.Status = resp.StatusCode
	if kind == domain.KindRateLimited {
		pe.RetryAfter = httpx.RetryAfter(resp.Header, c.now(), "ratelimit-reset", "Retry-After")
	}
	return pe
}

func isNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "unable to resolve")
}

func isExpired(pe *domain.PlatformError) bool {
	return pe.Err != nil && strings.HasPrefix(pe.Err.Error(), "ExpiredToken")
}
