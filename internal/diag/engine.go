package diag

import (
	"context"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-hubmon/internal/data"
)

const recordCacheSize = 4096

// Engine maintains the per-(resource, day) DiagnosticRecord and the
// device catalog's last-seen marker. Ingestion is single-writer, so the
// engine keeps an LRU of current records to avoid a read per event;
// every mutation is still written through to the store, which is what
// concurrent readers observe.
type Engine struct {
	diags   data.DiagnosticsRepository
	devices data.DeviceRepository
	loc     *time.Location
	lowPct  int

	cache *lru.Cache[string, *data.DiagnosticRecord]
}

func NewEngine(diags data.DiagnosticsRepository, devices data.DeviceRepository, loc *time.Location, batteryThreshold int) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if batteryThreshold <= 0 {
		batteryThreshold = 10
	}
	cache, _ := lru.New[string, *data.DiagnosticRecord](recordCacheSize)
	return &Engine{
		diags:   diags,
		devices: devices,
		loc:     loc,
		lowPct:  batteryThreshold,
		cache:   cache,
	}
}

// Day buckets an instant into the reference time zone's calendar date.
func (e *Engine) Day(t time.Time) string {
	return t.In(e.loc).Format("2006-01-02")
}

// Touch advances the device's last-seen marker, creating a placeholder
// catalog entry for resources the hub never listed.
func (e *Engine) Touch(ctx context.Context, rid string, ts time.Time) error {
	return e.devices.TouchDevice(ctx, rid, ts)
}

// ApplyConnectivity folds one connectivity status into the record for
// the day of now. Repeated identical statuses are no-ops: they neither
// count as transitions nor reset the downtime clock.
func (e *Engine) ApplyConnectivity(ctx context.Context, rid string, status data.ConnStatus, now time.Time) error {
	day := e.Day(now)
	rec, err := e.loadRecord(ctx, rid, day)
	if err != nil {
		return err
	}
	if status == rec.LastStatus {
		return nil
	}

	if rec.LastStatus == data.StatusDisconnected && rec.LastTransitionAt != nil {
		if err := e.closeDowntime(ctx, rec, now); err != nil {
			return err
		}
	}
	if status == data.StatusDisconnected {
		rec.DisconnectCount++
	}
	rec.LastStatus = status
	at := now
	rec.LastTransitionAt = &at

	return e.store(ctx, rec)
}

// closeDowntime attributes the finished disconnected interval. The
// interval is capped at the midnight following its start: downtime
// spanning a day boundary belongs entirely to the day the disconnect
// began.
func (e *Engine) closeDowntime(ctx context.Context, rec *data.DiagnosticRecord, now time.Time) error {
	start := *rec.LastTransitionAt
	end := now
	if boundary := e.endOfDay(start); end.After(boundary) {
		end = boundary
	}

	delta := int(end.Sub(start).Seconds())
	if delta < 0 {
		// Internal inconsistency; keep the record untouched and move on.
		log.Printf("[ERROR] Diagnostics: negative downtime for %s (start=%s now=%s), skipped",
			rec.RID, start.Format(time.RFC3339), now.Format(time.RFC3339))
		return nil
	}

	if startDay := e.Day(start); startDay != rec.Day {
		return e.diags.AddDowntime(ctx, rec.RID, startDay, delta)
	}
	rec.DowntimeSeconds += delta
	return nil
}

// BatteryReading is the battery signal as decoded by the router; the
// low/not-low decision against the configured threshold happens here.
type BatteryReading struct {
	State string
	Level *float64
}

func (e *Engine) ApplyBattery(ctx context.Context, rid string, reading BatteryReading, now time.Time) error {
	low := reading.State == "low"
	if !low && reading.Level != nil {
		low = *reading.Level <= float64(e.lowPct)
	}

	day := e.Day(now)
	rec, err := e.loadRecord(ctx, rid, day)
	if err != nil {
		return err
	}
	rec.BatteryLow = low
	if err := e.store(ctx, rec); err != nil {
		return err
	}

	if err := e.devices.SetDeviceBattery(ctx, rid, low); err != nil {
		return fmt.Errorf("set device battery: %w", err)
	}
	return nil
}

func (e *Engine) loadRecord(ctx context.Context, rid, day string) (*data.DiagnosticRecord, error) {
	key := rid + "|" + day
	if rec, ok := e.cache.Get(key); ok {
		return rec, nil
	}

	rec, err := e.diags.GetDiagnostic(ctx, rid, day)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &data.DiagnosticRecord{RID: rid, Day: day, LastStatus: data.StatusUnknown}
		// Carry the open state from the most recent earlier record so a
		// disconnect or low battery survives the day rollover.
		prev, err := e.diags.GetLatestBefore(ctx, rid, day)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			rec.LastStatus = prev.LastStatus
			rec.LastTransitionAt = prev.LastTransitionAt
			rec.BatteryLow = prev.BatteryLow
		}
	}
	return rec, nil
}

func (e *Engine) store(ctx context.Context, rec *data.DiagnosticRecord) error {
	key := rec.RID + "|" + rec.Day
	if err := e.diags.UpsertDiagnostic(ctx, rec); err != nil {
		e.cache.Remove(key)
		return err
	}
	e.cache.Add(key, rec)
	return nil
}

func (e *Engine) endOfDay(t time.Time) time.Time {
	lt := t.In(e.loc)
	y, m, d := lt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc).AddDate(0, 0, 1)
}
