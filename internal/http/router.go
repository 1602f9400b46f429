package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
// A nil gatherer serves the default prometheus registry.
func NewRouter(app *App, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(
		WithRecoverer(app.Logger),
		WithRequestID(app.Logger),
		WithLogging(app.Logger),
	)

	r.Get("/healthz", app.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/options", app.optionsHandler)
		r.Get("/locations/{location}/categories", app.categoriesHandler)
		r.Route("/items", func(r chi.Router) {
			r.Get("/", app.listItemsHandler)
			r.Post("/", app.addItemHandler)
			r.Post("/{index}/increment", app.incrementHandler)
			r.Post("/{index}/decrement", app.decrementHandler)
		})
		r.Post("/sync", app.syncHandler)
		r.Post("/reload", app.reloadHandler)
		r.Get("/status", app.statusHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, jsonError{Error: "NOT_FOUND", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, jsonError{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	return r
}
