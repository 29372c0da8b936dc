package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/technosupport/ts-hubmon/internal/broadcast"
	"github.com/technosupport/ts-hubmon/internal/catalog"
	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/diag"
	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/stream"
)

// StatusReader reads the last recorded stream state.
type StatusReader interface {
	Current(ctx context.Context) (stream.StatusChange, error)
}

// ConnectivityFetcher reads the hub's live connectivity snapshot.
type ConnectivityFetcher interface {
	FetchConnectivity(ctx context.Context) ([]hub.ConnectivityStatus, error)
}

// Pinger is the liveness slice of *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler carries the dependencies of every API endpoint.
type Handler struct {
	Events    data.EventRepository
	Devices   data.DeviceRepository
	Diags     data.DiagnosticsRepository
	Reporter  *diag.Reporter
	Refresher *catalog.Refresher
	Hub       ConnectivityFetcher
	Status    StatusReader
	Queue     *broadcast.Queue
	DB        Pinger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
