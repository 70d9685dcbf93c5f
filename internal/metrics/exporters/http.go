// Package exporters publishes the capture stream metrics: the Prometheus
// scrape endpoint and a periodic frame-rate event for SSE clients.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves the stkcam_* stream metrics and the Go runtime
// collectors. Gather errors are logged and the remaining metrics are still
// served, so one broken collector does not blank the scrape.
func HTTPHandler(logger *slog.Logger) http.Handler {
	opts := promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}
	if logger != nil {
		opts.ErrorLog = scrapeLog{logger}
	}
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, opts),
	)
}

// scrapeLog adapts slog to promhttp.Logger.
type scrapeLog struct{ logger *slog.Logger }

func (l scrapeLog) Println(v ...any) {
	l.logger.Warn("Metrics scrape error", "error", strings.TrimSpace(fmt.Sprintln(v...)))
}
