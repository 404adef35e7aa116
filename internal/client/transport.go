package client

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const transportTimeout = 30 * time.Second

var errBodyNotReplayable = errors.New("request body cannot be replayed")

// Middleware is one stage of the outbound pipeline.
type Middleware func(http.RoundTripper) http.RoundTripper

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps base with stages. The first stage is the outermost and sees
// the request first.
func Chain(base http.RoundTripper, stages ...Middleware) http.RoundTripper {
	rt := base
	for i := len(stages) - 1; i >= 0; i-- {
		rt = stages[i](rt)
	}
	return rt
}

// NewTransport returns an http.Transport with 30 second connect, TLS and
// response header timeouts.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   transportTimeout,
			KeepAlive: transportTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   transportTimeout,
		ResponseHeaderTimeout: transportTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
}

// AttachToken sets "Authorization: Bearer <access token>" from store on a copy
// of every request. It never waits on a refresh in progress.
func AttachToken(store Store) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			tokens, err := store.Load()
			if err != nil {
				return nil, err
			}
			out := req.Clone(req.Context())
			if tokens.AccessToken != "" {
				out.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
			} else {
				out.Header.Del("Authorization")
			}
			return next.RoundTrip(out)
		})
	}
}

// RefreshInterceptor retries a request once after a 401 or 403, refreshing
// the access token first. Concurrent failures share one refresh.
type RefreshInterceptor struct {
	store     Store
	refresher Refresher
	logger    *zap.Logger

	gate sync.Mutex
}

func NewRefreshInterceptor(store Store, refresher Refresher, logger *zap.Logger) *RefreshInterceptor {
	return &RefreshInterceptor{store: store, refresher: refresher, logger: logger}
}

// RefreshOnAuthFailure is the Middleware form of a new RefreshInterceptor.
func RefreshOnAuthFailure(store Store, refresher Refresher, logger *zap.Logger) Middleware {
	return NewRefreshInterceptor(store, refresher, logger).Wrap
}

// Wrap places the interceptor in front of next. next must attach the token,
// typically AttachToken, so the retry picks up the refreshed value.
func (i *RefreshInterceptor) Wrap(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		before, _ := i.store.Load()

		resp, err := next.RoundTrip(req)
		if err != nil || !isAuthFailure(resp.StatusCode) {
			return resp, err
		}

		retry, err := rebuild(req)
		if err != nil {
			i.logger.Debug("not retrying request", zap.String("url", req.URL.String()), zap.Error(err))
			return resp, nil
		}

		if !i.ensureRefreshed(req, sentToken(resp, before.AccessToken)) {
			return resp, nil
		}

		drain(resp)
		return next.RoundTrip(retry)
	})
}

// ensureRefreshed reports whether the store now holds an access token other
// than sent. Only the first caller through the gate calls the refresher;
// the rest find the token already replaced.
func (i *RefreshInterceptor) ensureRefreshed(req *http.Request, sent string) bool {
	i.gate.Lock()
	defer i.gate.Unlock()

	current, err := i.store.Load()
	if err != nil {
		i.logger.Warn("loading tokens failed", zap.Error(err))
		return false
	}
	if current.AccessToken != "" && current.AccessToken != sent {
		return true
	}
	if current.RefreshToken == "" {
		return false
	}

	access, err := i.refresher.Refresh(req.Context(), current.RefreshToken)
	if err != nil {
		var rejected *RefreshRejectedError
		if errors.As(err, &rejected) {
			i.logger.Info("refresh rejected by server", zap.Int("status", rejected.StatusCode))
		} else {
			i.logger.Warn("refresh call failed", zap.Error(err))
		}
		return false
	}

	current.AccessToken = access
	if err := i.store.Save(current); err != nil {
		i.logger.Warn("saving refreshed token failed", zap.Error(err))
		return false
	}
	i.logger.Debug("access token refreshed")
	return true
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// sentToken recovers the bearer token the failed request actually carried.
func sentToken(resp *http.Response, fallback string) string {
	if resp.Request == nil {
		return fallback
	}
	const prefix = "Bearer "
	h := resp.Request.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func rebuild(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
