// Package client talks to the gateway over HTTP and keeps the caller's tokens
// fresh through a RefreshInterceptor.
package client

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

	"go.uber.org/zap"
)

var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

type User struct {
	ID         uint   `json:"id"`
	Identifier string `json:"identifier"`
}

type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type Client struct {
	baseURL string
	store   Store
	logger  *zap.Logger
	// plain carries the auth endpoints; authed runs every request through
	// the refresh pipeline.
	plain  *http.Client
	authed *http.Client
}

// New builds a client for the gateway at baseURL. A nil base transport uses
// NewTransport.
func New(baseURL string, store Store, base http.RoundTripper, logger *zap.Logger) *Client {
	if base == nil {
		base = NewTransport()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	plain := &http.Client{Transport: base}

	return &Client{
		baseURL: baseURL,
		store:   store,
		logger:  logger,
		plain:   plain,
		authed: &http.Client{Transport: Chain(base,
			RefreshOnAuthFailure(store, NewHTTPRefresher(baseURL, plain), logger),
			AttachToken(store),
		)},
	}
}

func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	return c.startSession(ctx, "/auth/login", identifier, password)
}

func (c *Client) Register(ctx context.Context, identifier, password string) (*Session, error) {
	return c.startSession(ctx, "/auth/register", identifier, password)
}

func (c *Client) startSession(ctx context.Context, path, identifier, password string) (*Session, error) {
	var session Session
	payload := map[string]string{"identifier": identifier, "password": password}
	if err := c.do(ctx, c.plain, http.MethodPost, path, payload, &session); err != nil {
		return nil, err
	}
	err := c.store.Save(Tokens{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		Identifier:   session.User.Identifier,
	})
	if err != nil {
		return nil, fmt.Errorf("saving tokens: %w", err)
	}
	return &session, nil
}

// Logout revokes the stored refresh token on the server and clears the store.
func (c *Client) Logout(ctx context.Context) error {
	tokens, err := c.store.Load()
	if err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		payload := map[string]string{"refreshToken": tokens.RefreshToken}
		if err := c.do(ctx, c.plain, http.MethodPost, "/auth/logout", payload, nil); err != nil {
			return err
		}
	}
	return c.store.Clear()
}

func (c *Client) RunCommand(ctx context.Context, cmd string) (string, error) {
	if err := c.requireSession(); err != nil {
		return "", err
	}
	var out struct {
		Output string `json:"output"`
	}
	if err := c.do(ctx, c.authed, http.MethodPost, "/run/cmd", map[string]string{"cmd": cmd}, &out); err != nil {
		return "", err
	}
	return out.Output, nil
}

// RunQuery returns the raw JSON body: an array of rows or {"result": ...}.
func (c *Client) RunQuery(ctx context.Context, query string) (json.RawMessage, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(ctx, c.authed, http.MethodPost, "/run/query", map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunQueryGet sends the query in the URL instead of the body.
func (c *Client) RunQueryGet(ctx context.Context, query string) (json.RawMessage, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	var out json.RawMessage
	path := "/run/query?query=" + url.QueryEscape(query)
	if err := c.do(ctx, c.authed, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddDeniedCommand(ctx context.Context, command string) (uint, error) {
	return c.addDenied(ctx, "/admin/addDeniedCommand", map[string]string{"command": command})
}

func (c *Client) AddDeniedQuery(ctx context.Context, query string) (uint, error) {
	return c.addDenied(ctx, "/admin/addDeniedQuery", map[string]string{"query": query})
}

func (c *Client) addDenied(ctx context.Context, path string, payload map[string]string) (uint, error) {
	if err := c.requireSession(); err != nil {
		return 0, err
	}
	var out struct {
		ID uint `json:"id"`
	}
	if err := c.do(ctx, c.authed, http.MethodPost, path, payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *Client) requireSession() error {
	tokens, err := c.store.Load()
	if err != nil {
		return err
	}
	if tokens.AccessToken == "" && tokens.RefreshToken == "" {
		return ErrNotLoggedIn
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		// bytes.Reader lets http.NewRequest set GetBody, so the request can be replayed.
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiErr)
		c.logger.Debug("request failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
