package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
	"git.home.luguber.info/inful/buildbot-exporter/internal/server/responses"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
)

type fakeStatus struct{}

func (fakeStatus) StartTime() time.Time { return time.Now().Add(-time.Minute) }
func (fakeStatus) InFlightCounts() map[lifecycle.Kind]int {
	return map[lifecycle.Kind]int{lifecycle.Build: 2}
}
func (fakeStatus) IngestStats() subscriber.Stats { return subscriber.Stats{Published: 5, Ignored: 1} }

func newTestServer(t *testing.T, cfg config.ExpositionConfig) (*Server, *metrics.RegistryRecorder) {
	t.Helper()
	reg := metrics.NewRegistry()
	rec, err := metrics.NewRegistryRecorder(reg, nil)
	require.NoError(t, err)
	g, err := metrics.NewGatherer(reg, false)
	require.NoError(t, err)
	return New(cfg, g, fakeStatus{}, nil), rec
}

func TestMetricsEndpointServesCatalog(t *testing.T) {
	srv, rec := newTestServer(t, config.Default().Exposition)
	rec.SetRunning(lifecycle.Worker, []string{"1", "docker"}, true, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	body := w.Body.String()
	require.Contains(t, body, "buildbot_workers_running_total 1")
	require.Contains(t, body, `buildbot_workers_running{worker_id="1",worker_name="docker"} 1`)
	require.Contains(t, body, "# TYPE buildbot_workers_running gauge")
}

func TestCustomMetricsPath(t *testing.T) {
	cfg := config.Default().Exposition
	cfg.Path = "/custom"
	srv, _ := newTestServer(t, cfg)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/custom", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.Default().Exposition)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health responses.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, 2, health.InFlight["builds"])
	require.Equal(t, uint64(5), health.Ingest.Published)
	require.Equal(t, uint64(1), health.Ingest.Ignored)
	require.Greater(t, health.Uptime, 0.0)
}

func TestLandingPageLinksMetrics(t *testing.T) {
	srv, _ := newTestServer(t, config.Default().Exposition)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `href="/metrics"`)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, config.Default().Exposition)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, http.MethodGet, w.Header().Get("Allow"))
}

func TestRequestIDHeaderIsAccepted(t *testing.T) {
	srv, _ := newTestServer(t, config.Default().Exposition)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStartServeStop(t *testing.T) {
	cfg := config.Default().Exposition
	cfg.Address = "127.0.0.1:0"
	srv, rec := newTestServer(t, cfg)
	rec.SetBuildInfo("v1.0.0", "abc123")
	require.Empty(t, srv.Addr())

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "buildbot_exporter_build_info")

	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	cfg := config.Default().Exposition
	cfg.Address = "127.0.0.1:0"
	first, _ := newTestServer(t, cfg)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	cfg.Address = first.Addr()
	second, _ := newTestServer(t, cfg)
	require.Error(t, second.Start(context.Background()))
}
