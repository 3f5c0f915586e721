// Package moltbook is a client for the Moltbook agent API.
//
// Every authenticated call reads the effective credential from a
// CredentialSource right before the request is sent, so switching the
// active account takes effect on the next call.
package moltbook

import (
	"bytes"
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

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// ErrNotConnected is returned when no credential is available.
var ErrNotConnected = errors.New("no agent connected")

// CredentialSource yields the key used to authenticate calls.
type CredentialSource interface {
	EffectiveCredential() (string, bool)
}

// APIError is a failure reported by the API, either as an HTTP error status
// or as a success:false payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode >= 400 {
		return fmt.Sprintf("moltbook API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("moltbook API error: %s", e.Message)
}

// Client talks to the Moltbook API.
type Client struct {
	base    string
	http    *http.Client
	creds   CredentialSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for base (DefaultBaseURL when empty). creds may be nil
// for clients that only register agents.
func New(base string, creds CredentialSource, opts ...Option) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  slog.With("component", "moltbook"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type failer interface {
	failure() (string, bool)
}

func (c *Client) credential() (string, error) {
	if c.creds == nil {
		return "", ErrNotConnected
	}
	key, ok := c.creds.EffectiveCredential()
	if !ok || key == "" {
		return "", ErrNotConnected
	}
	return key, nil
}

// do sends one request and decodes the JSON reply into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, auth bool) error {
	var key string
	if auth {
		var err error
		if key, err = c.credential(); err != nil {
			return err
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	c.logger.Debug("request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env envelope
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &env) == nil {
			if env.Error != "" {
				msg = env.Error
			} else if env.Message != "" {
				msg = env.Message
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if f, ok := out.(failer); ok {
		if msg, failed := f.failure(); failed {
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
	}
	return nil
}

// action decodes free-form replies to write calls.
func (c *Client) action(ctx context.Context, method, path string, body any) (*ActionResult, error) {
	var raw map[string]any
	if err := c.do(ctx, method, path, nil, body, &raw, true); err != nil {
		return nil, err
	}
	if ok, present := raw["success"].(bool); present && !ok {
		msg, _ := raw["error"].(string)
		if msg == "" {
			msg, _ = raw["message"].(string)
		}
		if msg == "" {
			msg = "request failed"
		}
		return nil, &APIError{Message: msg}
	}
	res := &ActionResult{Fields: raw}
	res.Message, _ = raw["message"].(string)
	return res, nil
}
