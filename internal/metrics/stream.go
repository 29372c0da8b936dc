package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubmon_stream_connected",
		Help: "Whether the hub event stream is currently connected (1=streaming)",
	})

	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hubmon_stream_reconnects_total",
		Help: "Total number of reconnect attempts against the hub event stream",
	})

	StreamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubmon_stream_failures_total",
		Help: "Total stream failures by reason",
	}, []string{"reason"})

	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubmon_events_ingested_total",
		Help: "Total events routed through the pipeline by kind",
	}, []string{"kind"})

	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hubmon_stream_decode_errors_total",
		Help: "Total malformed frames skipped on the event stream",
	})

	StorageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubmon_storage_errors_total",
		Help: "Total store adapter failures by operation",
	}, []string{"op"})

	BroadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hubmon_broadcast_dropped_total",
		Help: "Total live envelopes evicted from the broadcast ring before any read",
	})

	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubmon_broadcast_subscribers",
		Help: "Current number of attached live-tail subscribers",
	})

	CatalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubmon_catalog_refresh_total",
		Help: "Total device catalog refreshes by result",
	}, []string{"result"})
)
