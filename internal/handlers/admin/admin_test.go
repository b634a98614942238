package admin_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/cache"
	"github.com/benjaminschubert/cacheproxy/internal/config"
	"github.com/benjaminschubert/cacheproxy/internal/handlers/admin"
	"github.com/benjaminschubert/cacheproxy/internal/middleware"
	"github.com/benjaminschubert/cacheproxy/internal/testutils"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

func setup(t *testing.T) (*httptest.Server, *cache.Cache) {
	t.Helper()

	logger := testutils.TestLogger(t)
	c := cache.New(logger, nil)
	conf := config.Default(func(string) (string, bool) { return "", false })

	handler := http.NewServeMux()
	require.NoError(t, admin.RegisterHandler(handler, c, conf))

	server := httptest.NewServer(
		middleware.ApplyAllMiddlewares(handler, "admin", logger, prometheus.NewPedanticRegistry()),
	)
	t.Cleanup(server.Close)
	return server, c
}

func do(t *testing.T, server *httptest.Server, method, path string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, server.URL+path, nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	server, c := setup(t)
	resp := testutils.NewResponse(time.Now(), "hello")
	_, _, err := c.InsertIfAbsent("key", resp)
	require.NoError(t, err)

	status, body := do(t, server, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, status)
	size := strconv.Itoa(resp.Size())
	assert.JSONEq(t, `{"entries": 1, "size": {"bytes": `+size+`, "pretty": "`+size+`B"}}`, body)
}

func TestStatisticsReportUnusableCache(t *testing.T) {
	t.Parallel()

	server, c := setup(t)
	entry, _, err := c.InsertIfAbsent("key", testutils.NewResponse(time.Now(), "hello"))
	require.NoError(t, err)
	require.Panics(t, func() {
		_ = entry.View(func(*wire.Response) error { panic("boom") })
	})

	status, _ := do(t, server, http.MethodGet, "/stats")
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestConfiguration(t *testing.T) {
	t.Parallel()

	server, _ := setup(t)

	status, body := do(t, server, http.MethodGet, "/config")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "origin: ")
	assert.Contains(t, body, "127.0.0.1:8080")
	assert.Contains(t, body, "sweep_interval: 5s\n")
}

func TestManualSweep(t *testing.T) {
	t.Parallel()

	server, c := setup(t)
	_, _, err := c.InsertIfAbsent("old", testutils.NewResponse(time.Now().Add(-time.Hour), "old"))
	require.NoError(t, err)
	_, _, err = c.InsertIfAbsent("new", testutils.NewResponse(time.Now(), "new"))
	require.NoError(t, err)

	status, body := do(t, server, http.MethodPost, "/sweep")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"examined": 2, "evicted": 1}`, body)
	assert.Equal(t, 1, c.Len())

	status, _ = do(t, server, http.MethodGet, "/sweep")
	require.Equal(t, http.StatusMethodNotAllowed, status)
}
