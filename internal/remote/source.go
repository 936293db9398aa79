package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"contenthub/internal/store"
)

// ErrSyncUnavailable covers every way a remote snapshot can fail to arrive:
// transport errors, non-2xx responses and undecodable bodies.
var ErrSyncUnavailable = errors.New("remote snapshot unavailable")

// Source yields the latest published snapshot.
type Source interface {
	Fetch(ctx context.Context) (store.RemoteSnapshot, error)
}

// RetryConfig bounds the backoff used for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// HTTPSource fetches the snapshot document from a URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Now    func() time.Time

	executor failsafe.Executor[*http.Response]
}

func NewHTTPSource(rawURL string, client *http.Client, retry RetryConfig) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{
		URL:      rawURL,
		Client:   client,
		Now:      time.Now,
		executor: failsafe.With(newRetryPolicy(retry)),
	}
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

//nolint:bodyclose // *http.Response is a type parameter here
func newRetryPolicy(cfg RetryConfig) retrypolicy.RetryPolicy[*http.Response] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()
}

// requestURL appends a t=<unix ms> query parameter so intermediaries never
// serve a cached copy.
func (s *HTTPSource) requestURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	q.Set("t", strconv.FormatInt(now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs the GET. It imposes no timeout of its own; ctx bounds it.
func (s *HTTPSource) Fetch(ctx context.Context) (store.RemoteSnapshot, error) {
	target, err := s.requestURL()
	if err != nil {
		return store.RemoteSnapshot{}, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	executor := s.executor
	if executor == nil {
		executor = failsafe.With(newRetryPolicy(DefaultRetryConfig()))
	}
	resp, err := executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Accept", "application/json")
		resp, err := s.Client.Do(req)
		if err != nil {
			return nil, err
		}
		if shouldRetry(resp, nil) {
			// Retried responses are discarded, so release them now.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp.Body = http.NoBody
		}
		return resp, nil
	})
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return store.RemoteSnapshot{}, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return store.RemoteSnapshot{}, fmt.Errorf("%w: status %d", ErrSyncUnavailable, resp.StatusCode)
	}
	var snap store.RemoteSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return store.RemoteSnapshot{}, fmt.Errorf("%w: decode: %v", ErrSyncUnavailable, err)
	}
	return snap, nil
}
