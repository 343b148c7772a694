package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// NewGatherer builds a Prometheus registry exposing reg. Go runtime and
// process collectors are added when runtime is true.
func NewGatherer(reg *Registry, runtime bool) (*prom.Registry, error) {
	pr := prom.NewRegistry()
	if err := pr.Register(NewCollector(reg)); err != nil {
		return nil, fmt.Errorf("register registry collector: %w", err)
	}
	if runtime {
		if err := pr.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("register go collector: %w", err)
		}
		if err := pr.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("register process collector: %w", err)
		}
	}
	return pr, nil
}

// HTTPHandler returns an http.Handler serving the exposition of g. Any
// gathering or encoding error fails the scrape with a 500 and leaves the
// registry untouched.
func HTTPHandler(g prom.Gatherer, openMetrics bool, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:          errorLog{logger: logger},
		ErrorHandling:     promhttp.HTTPErrorOnError,
		EnableOpenMetrics: openMetrics,
	})
}

// errorLog adapts slog to promhttp.Logger.
type errorLog struct {
	logger *slog.Logger
}

func (l errorLog) Println(v ...any) {
	l.logger.Error("Metrics exposition failed", slog.String(logfields.KeyError, fmt.Sprint(v...)))
}
