package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-hubmon/internal/data"
)

// ListDevices returns the device catalog.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Devices.ListDevices(r.Context())
	if err != nil {
		http.Error(w, "failed to list devices", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}

// GetDevice returns one catalog entry by resource id.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	if rid == "" {
		http.Error(w, "missing device id", http.StatusBadRequest)
		return
	}

	device, err := h.Devices.GetDevice(r.Context(), rid)
	if errors.Is(err, data.ErrRecordNotFound) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to get device", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// Connectivity returns the hub's connectivity snapshot as of right now,
// bypassing the diagnostics store. Handy for checking whether live state
// agrees with what the stream has been reporting.
func (h *Handler) Connectivity(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.Hub.FetchConnectivity(r.Context())
	if err != nil {
		http.Error(w, "failed to fetch connectivity from hub", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(statuses),
		"statuses": statuses,
	})
}

// RefreshCatalog pulls the hub's device list immediately instead of
// waiting for the next scheduled refresh.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	applied, err := h.Refresher.RefreshOnce(r.Context())
	if err != nil {
		http.Error(w, "refresh failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "refreshed",
		"devices": applied,
	})
}
