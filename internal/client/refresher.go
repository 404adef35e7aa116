package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RefreshRejectedError means the server answered the refresh call and
// refused it. Network failures are returned as plain errors.
type RefreshRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RefreshRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("refresh rejected (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("refresh rejected (%d)", e.StatusCode)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

type httpRefresher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRefresher calls POST {baseURL}/auth/refresh. httpClient must not be
// wrapped by RefreshOnAuthFailure.
func NewHTTPRefresher(baseURL string, httpClient *http.Client) Refresher {
	return &httpRefresher{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

func (r *httpRefresher) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		return "", &RefreshRejectedError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return "", &RefreshRejectedError{StatusCode: resp.StatusCode, Message: "empty access token"}
	}
	return out.AccessToken, nil
}

type errorResponse struct {
	Error string `json:"error"`
}
