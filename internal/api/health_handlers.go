package api

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-hubmon/internal/stream"
)

const defaultReportDays = 7

// sinceDay resolves the report window start from ?since=YYYY-MM-DD or
// ?days=N, defaulting to the last week.
func (h *Handler) sinceDay(r *http.Request, now time.Time) (string, bool) {
	if since := r.URL.Query().Get("since"); since != "" {
		if _, err := time.Parse("2006-01-02", since); err != nil {
			return "", false
		}
		return since, true
	}
	days := defaultReportDays
	if d := r.URL.Query().Get("days"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil || v <= 0 {
			return "", false
		}
		days = v
	}
	return h.Reporter.DaysAgo(now, days), true
}

// FleetHealth returns every device with its aggregated diagnostics and
// health score, worst first.
func (h *Handler) FleetHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	since, ok := h.sinceDay(r, now)
	if !ok {
		http.Error(w, "invalid since/days", http.StatusBadRequest)
		return
	}

	report, err := h.Reporter.FleetHealth(r.Context(), since, now)
	if err != nil {
		http.Error(w, "failed to build health report", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":   since,
		"count":   len(report),
		"devices": report,
	})
}

// DeviceReport returns the per-day diagnostic records for one device.
func (h *Handler) DeviceReport(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	if rid == "" {
		http.Error(w, "missing device id", http.StatusBadRequest)
		return
	}
	since, ok := h.sinceDay(r, time.Now())
	if !ok {
		http.Error(w, "invalid since/days", http.StatusBadRequest)
		return
	}

	records, err := h.Reporter.DeviceReport(r.Context(), rid, since)
	if err != nil {
		http.Error(w, "failed to get device report", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rid":   rid,
		"since": since,
		"days":  records,
	})
}

// ExportHealthCSV streams the fleet health report as CSV.
func (h *Handler) ExportHealthCSV(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	since, ok := h.sinceDay(r, now)
	if !ok {
		http.Error(w, "invalid since/days", http.StatusBadRequest)
		return
	}

	report, err := h.Reporter.FleetHealth(r.Context(), since, now)
	if err != nil {
		http.Error(w, "failed to build health report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="device_health.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"rid", "name", "product_type", "disconnects", "downtime_minutes", "last_seen", "battery_low", "stale", "score"})
	for _, row := range report {
		lastSeen := ""
		if row.LastSeen != nil {
			lastSeen = row.LastSeen.Format(time.RFC3339)
		}
		cw.Write([]string{
			row.RID,
			row.Name,
			row.ProductType,
			strconv.Itoa(row.Disconnects),
			strconv.Itoa(row.DowntimeMinutes),
			lastSeen,
			strconv.FormatBool(row.BatteryLow),
			strconv.FormatBool(row.Stale),
			strconv.Itoa(row.Score),
		})
	}
	cw.Flush()
}

// Healthz reports process liveness: database reachability plus the last
// recorded stream state. The endpoint stays 200 while the stream is
// down; a hub outage is a condition we report, not a reason to restart.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := true
	if err := h.DB.PingContext(ctx); err != nil {
		dbOK = false
	}

	state := stream.StatusChange{State: stream.StateDisconnected}
	if h.Status != nil {
		if s, err := h.Status.Current(ctx); err == nil {
			state = s
		}
	}

	code := http.StatusOK
	if !dbOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"db":     dbOK,
		"stream": state,
	})
}
