package api

import (
	"net/http"
	"time"
)

// Stats returns counters for the dashboard header: stored events,
// events in the last 24h, catalog size, devices with diagnostics in the
// last week, and the current broadcast depth.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	totalEvents, err := h.Events.CountEvents(ctx)
	if err != nil {
		http.Error(w, "failed to count events", http.StatusInternalServerError)
		return
	}
	recentEvents, err := h.Events.CountEventsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		http.Error(w, "failed to count recent events", http.StatusInternalServerError)
		return
	}
	devices, err := h.Devices.CountDevices(ctx)
	if err != nil {
		http.Error(w, "failed to count devices", http.StatusInternalServerError)
		return
	}
	active, err := h.Diags.CountActiveSince(ctx, h.Reporter.DaysAgo(now, defaultReportDays))
	if err != nil {
		http.Error(w, "failed to count active devices", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events_total":    totalEvents,
		"events_24h":      recentEvents,
		"devices":         devices,
		"active_7d":       active,
		"broadcast_depth": h.Queue.Len(),
	})
}
