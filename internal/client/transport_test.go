package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// respond builds a response the way http.Transport does, with Request set.
func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// acceptOnly answers 200 to requests bearing token and 401 to everything else.
func acceptOnly(token string, calls *atomic.Int32) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		if req.Header.Get("Authorization") == "Bearer "+token {
			return respond(req, http.StatusOK, `{"output":"ok"}`), nil
		}
		return respond(req, http.StatusUnauthorized, `{"error":"expired"}`), nil
	})
}

func countingRefresher(count *atomic.Int32, token string) Refresher {
	return RefresherFunc(func(ctx context.Context, refreshToken string) (string, error) {
		count.Add(1)
		return token, nil
	})
}

func pipeline(base http.RoundTripper, store Store, refresher Refresher) http.RoundTripper {
	return Chain(base, RefreshOnAuthFailure(store, refresher, zap.NewNop()), AttachToken(store))
}

func get(t *testing.T, rt http.RoundTripper) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://gateway.test/run/query?query=SELECT+1", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	return resp
}

func TestChain_FirstStageIsOutermost(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return respond(req, http.StatusOK, ""), nil
	})

	get(t, Chain(base, stage("a"), stage("b")))
	assert.Equal(t, []string{"a", "b", "base"}, order)
}

func TestAttachToken(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "abc"})
	var seen string
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.Header.Get("Authorization")
		return respond(req, http.StatusOK, ""), nil
	})

	req, err := http.NewRequest(http.MethodGet, "http://gateway.test/", nil)
	require.NoError(t, err)
	_, err = AttachToken(store)(base).RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", seen)
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request must not be mutated")
}

func TestRefresh_RetriesOnceWithNewToken(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var calls, refreshes atomic.Int32

	resp := get(t, pipeline(acceptOnly("new", &calls), store, countingRefresher(&refreshes, "new")))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), refreshes.Load())
	tokens, _ := store.Load()
	assert.Equal(t, "new", tokens.AccessToken)
	assert.Equal(t, "r1", tokens.RefreshToken)
}

func TestRefresh_ForbiddenAlsoTriggersRefresh(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var refreshes atomic.Int32
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer new" {
			return respond(req, http.StatusOK, ""), nil
		}
		return respond(req, http.StatusForbidden, `{"error":"Invalid or expired token"}`), nil
	})

	resp := get(t, pipeline(base, store, countingRefresher(&refreshes, "new")))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestRefresh_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	const n = 10
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var refreshes atomic.Int32

	// Hold every stale request until all n have been sent, so all of them
	// fail before any refresh completes.
	var stale sync.WaitGroup
	stale.Add(n)
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer new" {
			return respond(req, http.StatusOK, `{"output":"ok"}`), nil
		}
		stale.Done()
		stale.Wait()
		return respond(req, http.StatusUnauthorized, `{"error":"expired"}`), nil
	})
	rt := pipeline(base, store, countingRefresher(&refreshes, "new"))

	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, "http://gateway.test/run/cmd", nil)
			resp, err := rt.RoundTrip(req)
			if err == nil {
				statuses[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "request %d", i)
	}
}

func TestRefresh_FailureReturnsOriginalResponse(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var calls atomic.Int32
	refresher := RefresherFunc(func(ctx context.Context, refreshToken string) (string, error) {
		return "", &RefreshRejectedError{StatusCode: http.StatusForbidden, Message: "Invalid or expired refresh token"}
	})

	resp := get(t, pipeline(acceptOnly("new", &calls), store, refresher))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"expired"}`, string(body))
	assert.Equal(t, int32(1), calls.Load())
	tokens, _ := store.Load()
	assert.Equal(t, "old", tokens.AccessToken)
}

func TestRefresh_NetworkFailureReturnsOriginalResponse(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var calls atomic.Int32
	refresher := RefresherFunc(func(ctx context.Context, refreshToken string) (string, error) {
		return "", errors.New("connection refused")
	})

	resp := get(t, pipeline(acceptOnly("new", &calls), store, refresher))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresh_AtMostOneRetry(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var calls, refreshes atomic.Int32

	// The server rejects every token, including the refreshed one.
	resp := get(t, pipeline(acceptOnly("never", &calls), store, countingRefresher(&refreshes, "new")))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestRefresh_OtherStatusesPassThrough(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var refreshes atomic.Int32
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusInternalServerError, `{"error":"Command timed out"}`), nil
	})

	resp := get(t, pipeline(base, store, countingRefresher(&refreshes, "new")))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, refreshes.Load())
}

func TestRefresh_WithoutRefreshTokenGivesUp(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old"})
	var calls, refreshes atomic.Int32

	resp := get(t, pipeline(acceptOnly("new", &calls), store, countingRefresher(&refreshes, "new")))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, refreshes.Load())
}

func TestRefresh_ReplaysBody(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var refreshes atomic.Int32
	var bodies []string
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, string(data))
		if req.Header.Get("Authorization") == "Bearer new" {
			return respond(req, http.StatusOK, ""), nil
		}
		return respond(req, http.StatusUnauthorized, ""), nil
	})

	payload := `{"cmd":"ls -la"}`
	req, err := http.NewRequest(http.MethodPost, "http://gateway.test/run/cmd", bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	resp, err := pipeline(base, store, countingRefresher(&refreshes, "new")).RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{payload, payload}, bodies)
}

func TestRefresh_UnreplayableBodyIsNotRetried(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "old", RefreshToken: "r1"})
	var calls, refreshes atomic.Int32

	req, err := http.NewRequest(http.MethodPost, "http://gateway.test/run/cmd", io.NopCloser(strings.NewReader(`{"cmd":"ls"}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)
	resp, err := pipeline(acceptOnly("new", &calls), store, countingRefresher(&refreshes, "new")).RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, refreshes.Load())
}

func TestRefresh_PolicyForbiddenIsRetriedOnce(t *testing.T) {
	store := NewMemoryStore(Tokens{AccessToken: "valid", RefreshToken: "r1"})
	var calls, refreshes atomic.Int32
	base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return respond(req, http.StatusForbidden, `{"error":"Command is blocked"}`), nil
	})

	resp := get(t, pipeline(base, store, countingRefresher(&refreshes, "valid-2")))

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Command is blocked"}`, string(body))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), refreshes.Load())
}
