package data

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("record not found")
)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type ConnStatus string

const (
	StatusConnected    ConnStatus = "connected"
	StatusDisconnected ConnStatus = "disconnected"
	StatusUnknown      ConnStatus = "unknown"
)

// Device is a catalog entry keyed by the hub resource id. Rows are
// created either from the authoritative catalog fetch or as placeholders
// when an event references an unknown resource; they are never deleted
// here.
type Device struct {
	RID             string     `json:"rid"`
	Name            string     `json:"name"`
	ProductType     string     `json:"product_type"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	BatteryLow      *bool      `json:"battery_low,omitempty"`
	AgeAtOnboarding *int       `json:"age_at_onboarding_days,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DiagnosticRecord is the per-(resource, day) aggregate. It is the sole
// source of truth for scoring that device-day; only the diagnostics
// engine mutates it.
type DiagnosticRecord struct {
	RID              string     `json:"rid"`
	Day              string     `json:"day"` // YYYY-MM-DD in the reference time zone
	DisconnectCount  int        `json:"disconnect_count"`
	DowntimeSeconds  int        `json:"downtime_seconds"`
	LastStatus       ConnStatus `json:"last_status"`
	LastTransitionAt *time.Time `json:"last_transition_at,omitempty"`
	BatteryLow       bool       `json:"battery_low"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StoredEvent is a persisted raw event row.
type StoredEvent struct {
	ID    int64     `json:"id"`
	TS    time.Time `json:"ts"`
	RID   string    `json:"rid"`
	RType string    `json:"rtype"`
	Raw   []byte    `json:"raw"`
}

// EventRepository persists and reads raw events.
type EventRepository interface {
	InsertEvent(ctx context.Context, ts time.Time, rid, rtype string, payload map[string]any) error
	ListEvents(ctx context.Context, q string, limit int) ([]*StoredEvent, error)
	CountEvents(ctx context.Context) (int64, error)
	CountEventsSince(ctx context.Context, since time.Time) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceRepository maintains the device catalog.
type DeviceRepository interface {
	UpsertDevice(ctx context.Context, rid, name, productType string) error
	TouchDevice(ctx context.Context, rid string, seen time.Time) error
	SetDeviceBattery(ctx context.Context, rid string, low bool) error
	GetDevice(ctx context.Context, rid string) (*Device, error)
	ListDevices(ctx context.Context) ([]*Device, error)
	CountDevices(ctx context.Context) (int64, error)
}

// DiagnosticsRepository reads and upserts per-day diagnostic records.
// Get methods return (nil, nil) when no record exists.
type DiagnosticsRepository interface {
	GetDiagnostic(ctx context.Context, rid, day string) (*DiagnosticRecord, error)
	GetLatestBefore(ctx context.Context, rid, day string) (*DiagnosticRecord, error)
	UpsertDiagnostic(ctx context.Context, rec *DiagnosticRecord) error
	AddDowntime(ctx context.Context, rid, day string, seconds int) error
	QueryDiagnostics(ctx context.Context, rid, fromDay string) ([]*DiagnosticRecord, error)
	CountActiveSince(ctx context.Context, day string) (int64, error)
}
