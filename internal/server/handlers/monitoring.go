// Package handlers provides the exporter's health and landing page handlers.
package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/lifecycle"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/server/responses"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
	"git.home.luguber.info/inful/buildbot-exporter/internal/version"
)

// StatusProvider exposes the runtime state reported by /healthz.
type StatusProvider interface {
	StartTime() time.Time
	InFlightCounts() map[lifecycle.Kind]int
	IngestStats() subscriber.Stats
}

// MonitoringHandlers contains the health and landing page handlers.
type MonitoringHandlers struct {
	status       StatusProvider
	metricsPath  string
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates monitoring handlers. metricsPath is linked
// from the landing page.
func NewMonitoringHandlers(status StatusProvider, metricsPath string, logger *slog.Logger) *MonitoringHandlers {
	return &MonitoringHandlers{
		status:       status,
		metricsPath:  metricsPath,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
	}
}

// HandleHealth reports liveness plus in-flight counts and ingest totals.
func (h *MonitoringHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		InFlight:  map[string]int{},
	}

	if h.status != nil {
		health.Uptime = time.Since(h.status.StartTime()).Seconds()
		for kind, n := range h.status.InFlightCounts() {
			health.InFlight[string(kind)] = n
		}
		stats := h.status.IngestStats()
		health.Ingest = responses.IngestSummary{
			Published: stats.Published,
			Ignored:   stats.Ignored,
			Failed:    stats.Failed,
		}
	}

	if err := writeJSON(w, r, http.StatusOK, health); err != nil {
		internalErr := errors.WrapError(err, errors.CategoryInternal, "failed to write health response").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

var landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>Buildbot Exporter</title></head>
<body>
<h1>Buildbot Exporter</h1>
<p>Version {{.Version}}</p>
<ul>
<li><a href="{{.MetricsPath}}">Metrics</a></li>
<li><a href="/healthz">Health</a></li>
</ul>
</body>
</html>
`))

// HandleIndex renders the landing page.
func (h *MonitoringHandlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Version     string
		MetricsPath string
	}{version.Version, h.metricsPath}
	if err := landingPage.Execute(w, data); err != nil {
		slog.Error("failed rendering landing page", logfields.Error(err))
	}
}

// HandleNotFound answers unknown routes with a classified JSON error.
func (h *MonitoringHandlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	err := errors.NewError(errors.CategoryNotFound, "no such endpoint").
		WithContext("path", r.URL.Path).
		Warning().
		Build()
	h.errorAdapter.WriteErrorResponse(w, r, err)
}

// HandleMethodNotAllowed answers unsupported methods with a classified JSON error.
func (h *MonitoringHandlers) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	err := errors.ValidationError("invalid HTTP method").
		WithContext("method", r.Method).
		WithContext("allowed_method", "GET").
		Warning().
		Build()
	w.Header().Set("Allow", http.MethodGet)
	h.errorAdapter.WriteErrorResponse(w, r, err)
}
