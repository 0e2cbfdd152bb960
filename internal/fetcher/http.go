package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tieredcache/internal/cache"
	"tieredcache/internal/logger"
	"tieredcache/internal/models"
	"tieredcache/internal/ratelimit"

	"golang.org/x/sync/singleflight"
)

const (
	defaultPathPrefix = "/api/cache/"
	maxBodySize       = 1024 * 1024
)

// Config configures the network tier
type Config struct {
	// BaseURL is the upstream origin, e.g. "https://cache.example.com"
	BaseURL string
	// PathPrefix is joined between BaseURL and the escaped key; defaults to "/api/cache/"
	PathPrefix string
	Timeout    time.Duration
	// Limiter throttles outbound requests per upstream host; nil means unlimited
	Limiter ratelimit.Service
	Logger  logger.Service
	// Now stamps the modify date of fetched entries; defaults to time.Now
	Now func() time.Time
	// Client overrides the HTTP client built from Timeout
	Client *http.Client
}

// HTTPCache is a read-only tier that resolves keys against an upstream HTTP service.
// Only Get is implemented; writes, deletes and listing fall back to cache.Null.
type HTTPCache[V any] struct {
	cache.Null[V]
	base    *url.URL
	prefix  string
	client  *http.Client
	limiter ratelimit.Service
	logger  logger.Service
	now     func() time.Time
	timeout time.Duration
	group   singleflight.Group
}

// NewHTTPCache creates a network tier for the given upstream
func NewHTTPCache[V any](cfg Config) (*HTTPCache[V], error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid network base URL: %v", models.ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: network base URL must be http or https, got: %q", models.ErrInvalidConfig, cfg.BaseURL)
	}

	h := &HTTPCache[V]{
		base:    base,
		prefix:  cfg.PathPrefix,
		client:  cfg.Client,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		now:     cfg.Now,
		timeout: cfg.Timeout,
	}
	if h.prefix == "" {
		h.prefix = defaultPathPrefix
	}
	if h.client == nil {
		h.client = newHTTPClient(cfg.Timeout)
	}
	if h.logger == nil {
		h.logger = logger.NewNopLogger()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Get fetches key from the upstream. Concurrent fetches of one key share a single request.
// The shared request outlives any single caller; each caller stops waiting when its own ctx is done.
func (h *HTTPCache[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	if key == "" {
		return models.CacheEntry[V]{}, fmt.Errorf("%w: empty key", models.ErrInvalid)
	}

	results := h.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := h.fetchContext(ctx)
		defer cancel()
		return h.fetch(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if isTimeout(ctx, err) {
			h.logger.LogError(ctx, logger.OpNetworkFetch, key, "Network tier timed out", err, models.LogSeverityMedium, nil)
		}
		return models.CacheEntry[V]{}, models.NewTransportError("network get", key, err)
	case res := <-results:
		if res.Err != nil {
			return models.CacheEntry[V]{}, res.Err
		}

		h.logger.LogSuccess(ctx, logger.OpNetworkFetch, key, "Fetched entry from network tier", map[string]interface{}{
			"shared": res.Shared,
		})
		// A JSON null decodes to a nil interface when V is an interface type
		value, _ := res.Val.(V)
		return models.NewCacheEntry(value, h.now()), nil
	}
}

// fetchContext keeps the caller's values but not its cancellation, bounded by the tier timeout
func (h *HTTPCache[V]) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if h.timeout > 0 {
		return context.WithTimeout(detached, h.timeout)
	}
	return context.WithCancel(detached)
}

func (h *HTTPCache[V]) fetch(ctx context.Context, key string) (V, error) {
	var zero V

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, h.base.Host); err != nil {
			return zero, models.NewTransportError("network rate limit", key, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.entryURL(key), nil)
	if err != nil {
		return zero, models.NewTransportError("network request", key, err)
	}
	req.Header.Set("User-Agent", "tieredcache/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			h.logger.LogError(ctx, logger.OpNetworkFetch, key, "Network tier timed out", err, models.LogSeverityMedium, nil)
		}
		return zero, models.NewTransportError("network get", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return zero, models.ErrNotFound
	case resp.StatusCode == http.StatusGone:
		return zero, models.ErrExpired
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return zero, fmt.Errorf("%w: HTTP %d", models.ErrAccessDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return zero, models.NewTransportError("network get", key, fmt.Errorf("unexpected HTTP status: %s", resp.Status))
	}

	body, err := readBodyWithLimit(resp.Body, maxBodySize)
	if err != nil {
		return zero, models.NewTransportError("network read", key, err)
	}

	var payload struct {
		Value V `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return zero, models.NewTransportError("network decode", key, err)
	}
	return payload.Value, nil
}

func (h *HTTPCache[V]) entryURL(key string) string {
	return strings.TrimRight(h.base.String(), "/") + "/" + strings.Trim(h.prefix, "/") + "/" + url.PathEscape(key)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// readBodyWithLimit reads the response body with a size limit
func readBodyWithLimit(body io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxSize))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) >= maxSize {
		return nil, fmt.Errorf("response too large (exceeds %d bytes)", maxSize)
	}
	return data, nil
}
