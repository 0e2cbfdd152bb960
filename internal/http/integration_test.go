package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"tieredcache/internal/cache"
	"tieredcache/internal/fetcher"
	"tieredcache/internal/logger"
	"tieredcache/internal/mocks"
	"tieredcache/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testStack struct {
	server *httptest.Server
	clock  *testClock
	memory *cache.MemoryCache[json.RawMessage]
	disk   *cache.MemoryCache[json.RawMessage]
	store  *cache.Volatile[json.RawMessage]
}

// newTestStack serves a memory -> disk [-> network] cache over the real router
func newTestStack(t *testing.T, policy cache.Policy, limiter ratelimit.Service, network cache.Service[json.RawMessage]) *testStack {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	memory := cache.NewMemoryCache[json.RawMessage](cache.WithClock(clock.Now))
	disk := cache.NewMemoryCache[json.RawMessage](cache.WithClock(clock.Now))

	var (
		store *cache.Volatile[json.RawMessage]
		err   error
	)
	if network != nil {
		store, err = cache.NewThreeTier[json.RawMessage](memory, disk, network, policy, cache.WithClock(clock.Now))
	} else {
		store, err = cache.NewTwoTier[json.RawMessage](memory, disk, policy, cache.WithClock(clock.Now))
	}
	require.NoError(t, err)

	if limiter == nil {
		allowAll := &mocks.MockRateLimiter{}
		allowAll.On("Allow", mock.Anything).Return(true)
		limiter = allowAll
	}

	appLogger := logger.NewNopLogger()
	server := httptest.NewServer(NewRouter(NewHandler(store, appLogger), appLogger, limiter))
	t.Cleanup(server.Close)

	return &testStack{server: server, clock: clock, memory: memory, disk: disk, store: store}
}

func (s *testStack) do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIntegration_HealthCheck(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Minute, MaximumSize: 10}, nil, nil)

	resp := stack.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "healthy", decodeBody[HealthResponse](t, resp).Status)
}

func TestIntegration_EntryLifecycle(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Minute, MaximumSize: 10}, nil, nil)
	path := "/api/cache/" + url.PathEscape("users/42")

	resp := stack.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = stack.do(t, http.MethodPut, path, []byte(`{"name":"grace","admin":true}`))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decodeBody[EntryResponse](t, resp)
	assert.Equal(t, "users/42", entry.Key)
	assert.JSONEq(t, `{"name":"grace","admin":true}`, string(entry.Value))
	assert.True(t, stack.clock.Now().Equal(entry.ModifyDate))

	resp = stack.do(t, http.MethodGet, "/api/cache", nil)
	list := decodeBody[ListResponse](t, resp)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "users/42", list.Keys[0].Key)

	resp = stack.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_ExpiryAndPurge(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: 3 * time.Second, MaximumSize: 10}, nil, nil)

	stack.do(t, http.MethodPut, "/api/cache/a", []byte(`1`))
	stack.do(t, http.MethodPut, "/api/cache/b", []byte(`2`))

	stack.clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusOK, stack.do(t, http.MethodGet, "/api/cache/a", nil).StatusCode)

	stack.clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusNotFound, stack.do(t, http.MethodGet, "/api/cache/a", nil).StatusCode)

	// "b" is stale but has not been read; purge removes it
	resp := stack.do(t, http.MethodPost, "/api/cache/purge", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeBody[PurgeResponse](t, resp).Removed)
	assert.Equal(t, 0, stack.disk.Size())
}

func TestIntegration_EvictionKeepsNewest(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 2}, nil, nil)

	for _, key := range []string{"a", "b", "c"} {
		resp := stack.do(t, http.MethodPut, "/api/cache/"+key, []byte(`"`+key+`"`))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		stack.clock.Advance(time.Second)
	}

	list := decodeBody[ListResponse](t, stack.do(t, http.MethodGet, "/api/cache", nil))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 2, stack.disk.Size())
	assert.Equal(t, http.StatusNotFound, stack.do(t, http.MethodGet, "/api/cache/a", nil).StatusCode)
}

func TestIntegration_ClearEntries(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, nil)

	stack.do(t, http.MethodPut, "/api/cache/a", []byte(`1`))
	stack.do(t, http.MethodPut, "/api/cache/b", []byte(`2`))

	assert.Equal(t, http.StatusNoContent, stack.do(t, http.MethodDelete, "/api/cache", nil).StatusCode)
	assert.Equal(t, 0, stack.memory.Size())
	assert.Equal(t, 0, stack.disk.Size())
}

func TestIntegration_InvalidBody(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, nil)

	resp := stack.do(t, http.MethodPut, "/api/cache/a", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestIntegration_InvalidRouteAndMethod(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, nil)

	assert.Equal(t, http.StatusNotFound, stack.do(t, http.MethodGet, "/nope", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, stack.do(t, http.MethodPatch, "/api/cache/a", nil).StatusCode)
}

func TestIntegration_RateLimitedPerClient(t *testing.T) {
	limiter := ratelimit.NewLimiter(100, 1, 2, 1)
	t.Cleanup(limiter.Close)
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, limiter, nil)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, stack.server.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", "198.51.100.7")

		resp, err := stack.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	// A different client is unaffected
	req, err := http.NewRequest(http.MethodGet, stack.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.8")
	resp, err := stack.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_ThreeTierReadsThroughOrigin(t *testing.T) {
	origin := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, nil)
	origin.do(t, http.MethodPut, "/api/cache/"+url.PathEscape("docs/readme"), []byte(`{"lines":12}`))

	network, err := fetcher.NewHTTPCache[json.RawMessage](fetcher.Config{
		BaseURL: origin.server.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	edge := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, network)

	resp := edge.do(t, http.MethodGet, "/api/cache/"+url.PathEscape("docs/readme"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"lines":12}`, string(decodeBody[EntryResponse](t, resp).Value))

	// Network hits are not copied into the local tiers
	assert.Equal(t, 0, edge.memory.Size())
	assert.Equal(t, 0, edge.disk.Size())

	assert.Equal(t, http.StatusNotFound, edge.do(t, http.MethodGet, "/api/cache/absent", nil).StatusCode)

	// Local writes never reach the origin
	edge.do(t, http.MethodPut, "/api/cache/local", []byte(`true`))
	assert.Equal(t, http.StatusNotFound, origin.do(t, http.MethodGet, "/api/cache/local", nil).StatusCode)
}

func TestIntegration_ThreeTierOriginDown(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	originURL := origin.URL
	origin.Close()

	network, err := fetcher.NewHTTPCache[json.RawMessage](fetcher.Config{BaseURL: originURL, Timeout: time.Second})
	require.NoError(t, err)

	edge := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, network)

	resp := edge.do(t, http.MethodGet, "/api/cache/k", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestIntegration_CancelledRequestContext(t *testing.T) {
	stack := newTestStack(t, cache.Policy{Expiry: time.Hour, MaximumSize: 10}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stack.server.URL+"/health", nil)
	require.NoError(t, err)
	_, err = stack.server.Client().Do(req)
	assert.ErrorIs(t, err, context.Canceled)
}
