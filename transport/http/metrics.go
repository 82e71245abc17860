package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the process's Prometheus registry for a Host to
// mount alongside its dispatch routes (spec §6.6 ambient observability).
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
