package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// ListEvents returns recent raw events, newest first. ?q= filters by a
// substring match on resource id or type; ?limit= caps the page.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := h.Events.ListEvents(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// ExportEventsCSV streams recent events as CSV for offline analysis.
func (h *Handler) ExportEventsCSV(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListEvents(r.Context(), r.URL.Query().Get("q"), maxEventLimit)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "ts", "rid", "rtype", "raw"})
	for _, ev := range events {
		cw.Write([]string{
			fmt.Sprintf("%d", ev.ID),
			ev.TS.Format(time.RFC3339),
			ev.RID,
			ev.RType,
			string(ev.Raw),
		})
	}
	cw.Flush()
}
