package diag

import (
	"context"
	"sort"
	"time"

	"github.com/technosupport/ts-hubmon/internal/data"
)

// DeviceHealth is one row of the fleet health report.
type DeviceHealth struct {
	RID             string     `json:"rid"`
	Name            string     `json:"name"`
	ProductType     string     `json:"product_type"`
	Disconnects     int        `json:"disconnects"`
	DowntimeMinutes int        `json:"downtime_minutes"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	BatteryLow      bool       `json:"battery_low"`
	Stale           bool       `json:"stale"`
	Score           int        `json:"score"`
}

// Reporter builds health reports from stored diagnostics. Scores are
// computed at read time, never stored.
type Reporter struct {
	diags   data.DiagnosticsRepository
	devices data.DeviceRepository
	loc     *time.Location
}

func NewReporter(diags data.DiagnosticsRepository, devices data.DeviceRepository, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{diags: diags, devices: devices, loc: loc}
}

// FleetHealth aggregates diagnostics from sinceDay (inclusive,
// YYYY-MM-DD) onward across all known devices and scores each one,
// worst first. Devices with no diagnostics in range still appear so a
// silent device is visible in the report.
func (r *Reporter) FleetHealth(ctx context.Context, sinceDay string, now time.Time) ([]DeviceHealth, error) {
	devices, err := r.devices.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	records, err := r.diags.QueryDiagnostics(ctx, "", sinceDay)
	if err != nil {
		return nil, err
	}

	byRID := make(map[string]*agg)
	for _, rec := range records {
		a := byRID[rec.RID]
		if a == nil {
			a = &agg{}
			byRID[rec.RID] = a
		}
		a.disconnects += rec.DisconnectCount
		a.downtimeSeconds += rec.DowntimeSeconds
		// Battery reflects the latest record in range.
		if rec.Day >= a.latestDay {
			a.latestDay = rec.Day
			a.batteryLow = rec.BatteryLow
		}
	}

	known := make(map[string]bool, len(devices))
	report := make([]DeviceHealth, 0, len(devices))
	for _, d := range devices {
		known[d.RID] = true
		report = append(report, r.row(d.RID, d.Name, d.ProductType, d.LastSeen, byRID[d.RID], now))
	}
	// Diagnostics can exist for resources the catalog has never listed.
	for rid, a := range byRID {
		if !known[rid] {
			report = append(report, r.row(rid, rid, "device", nil, a, now))
		}
	}

	sort.SliceStable(report, func(i, j int) bool {
		if report[i].Score != report[j].Score {
			return report[i].Score > report[j].Score
		}
		return report[i].Name < report[j].Name
	})
	return report, nil
}

// DeviceReport returns the per-day records for a single device from
// sinceDay onward.
func (r *Reporter) DeviceReport(ctx context.Context, rid, sinceDay string) ([]*data.DiagnosticRecord, error) {
	return r.diags.QueryDiagnostics(ctx, rid, sinceDay)
}

// DaysAgo renders the day string for now minus n days in the reference
// time zone, for use as a sinceDay bound.
func (r *Reporter) DaysAgo(now time.Time, n int) string {
	return now.In(r.loc).AddDate(0, 0, -n).Format("2006-01-02")
}

type agg struct {
	disconnects     int
	downtimeSeconds int
	batteryLow      bool
	latestDay       string
}

func (r *Reporter) row(rid, name, productType string, lastSeen *time.Time, a *agg, now time.Time) DeviceHealth {
	h := DeviceHealth{
		RID:         rid,
		Name:        name,
		ProductType: productType,
		LastSeen:    lastSeen,
		// A device never heard from counts as stale.
		Stale: lastSeen == nil || now.Sub(*lastSeen) > StaleAfter,
	}
	if a != nil {
		h.Disconnects = a.disconnects
		h.DowntimeMinutes = a.downtimeSeconds / 60
		h.BatteryLow = a.batteryLow
	}
	h.Score = Score(h.Disconnects, h.DowntimeMinutes, h.Stale, h.BatteryLow)
	return h
}
