package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes wires every endpoint onto a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", h.ListEvents)
		r.Get("/events/export", h.ExportEventsCSV)

		r.Get("/devices", h.ListDevices)
		r.Get("/devices/{rid}", h.GetDevice)
		r.Post("/devices/refresh", h.RefreshCatalog)
		r.Get("/connectivity", h.Connectivity)

		r.Get("/health/devices", h.FleetHealth)
		r.Get("/health/devices/{rid}", h.DeviceReport)
		r.Get("/health/export", h.ExportHealthCSV)

		r.Get("/stats", h.Stats)
		r.Get("/tail", h.Tail)
	})

	return r
}
