// Package backend is the HTTP client for the storefront endpoints the agent consumes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vn.io.arda/storefront-notifier/internal/domain"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// TokenFunc supplies the bearer token for each request. An empty token sends no header.
type TokenFunc func(ctx context.Context) string

// Subscription is the body of POST /fcm/subscribe.
type Subscription struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform"`
}

// Client calls the storefront backend.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
}

// New creates a Client with a 10-second request timeout.
func New(baseURL string, token TokenFunc) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Orders fetches the current user's orders. The body may be a bare array or
// wrapped as {"data": [...]} / {"orders": [...]}.
func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &raw); err != nil {
		return nil, err
	}

	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err == nil {
		return orders, nil
	}
	var wrapped struct {
		Data   []domain.Order `json:"data"`
		Orders []domain.Order `json:"orders"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return wrapped.Orders, nil
}

// MarkRead calls PUT /notifications/{id}/read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllRead calls PUT /notifications/read-all.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// UnreadCount calls GET /notifications/unread-count.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var body struct {
		Count       *int64 `json:"count"`
		UnreadCount *int64 `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &body); err != nil {
		return 0, err
	}
	switch {
	case body.Count != nil:
		return *body.Count, nil
	case body.UnreadCount != nil:
		return *body.UnreadCount, nil
	}
	return 0, nil
}

// SubscribePush registers a push token: POST /fcm/subscribe.
func (c *Client) SubscribePush(ctx context.Context, sub Subscription) error {
	return c.do(ctx, http.MethodPost, "/fcm/subscribe", sub, nil)
}

// UnsubscribePush removes a push token: DELETE /fcm/unsubscribe.
func (c *Client) UnsubscribePush(ctx context.Context, sub Subscription) error {
	return c.do(ctx, http.MethodDelete, "/fcm/unsubscribe", sub, nil)
}

// StreamURL builds {base}/notifications/stream?token=<token>.
func StreamURL(baseURL, token string) string {
	u := strings.TrimRight(baseURL, "/") + "/notifications/stream"
	if token == "" {
		return u
	}
	return u + "?" + url.Values{"token": {token}}.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
