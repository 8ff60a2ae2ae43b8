package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brokergate/internal/platform/config"
	"brokergate/internal/platform/middleware"
)

// NewRouter assembles the HTTP surface: record routes behind auth, plus
// health and metrics. Transport stays thin; every decision lives in the
// lifecycle engine and stores.
func NewRouter(logger *slog.Logger, recordsHandler *RecordsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(config.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	recordsHandler.Register(r)
	return r
}
