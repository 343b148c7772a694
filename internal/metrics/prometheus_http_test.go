package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) *http.Response {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Result()
}

func TestHTTPHandlerServesTextExposition(t *testing.T) {
	rec, reg := newTestRecorder(t)
	rec.SetBuildInfo("dev", "unknown")

	g, err := NewGatherer(reg, false)
	require.NoError(t, err)

	resp := scrape(t, HTTPHandler(g, false, nil))
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `buildbot_exporter_build_info{commit="unknown",version="dev"} 1`)
	require.NotContains(t, string(body), "go_goroutines")
}

func TestHTTPHandlerIncludesRuntimeCollectors(t *testing.T) {
	_, reg := newTestRecorder(t)

	g, err := NewGatherer(reg, true)
	require.NoError(t, err)

	resp := scrape(t, HTTPHandler(g, false, nil))
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}

func TestHTTPHandlerFailsScrapeOnInvalidSample(t *testing.T) {
	reg := NewRegistry()
	reg.MustDeclare(Desc{Name: "bad", Help: "h", Kind: KindGauge, LabelNames: []string{"name"}})
	require.NoError(t, reg.SetGauge("bad", []string{"\xc3\x28"}, 1))

	g, err := NewGatherer(reg, false)
	require.NoError(t, err)

	resp := scrape(t, HTTPHandler(g, false, nil))
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	v, ok := reg.Snapshot().Value("bad", "\xc3\x28")
	require.True(t, ok, "a failed scrape leaves the registry untouched")
	require.InDelta(t, 1.0, v, 1e-9)
}
