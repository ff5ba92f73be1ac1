package handlers

import (
	"net/http"
)

// MetricsHandler serves the Prometheus exposition, or 404 when metrics are disabled.
func (a *App) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if a.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	a.Metrics.Handler().ServeHTTP(w, r)
}
