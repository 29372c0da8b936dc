package router

import (
	"context"
	"log"

	"github.com/technosupport/ts-hubmon/internal/broadcast"
	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/diag"
	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/metrics"
)

// Router fans each decoded event through the pipeline stages in a fixed
// order: persist, then diagnostics, then broadcast. A failing stage is
// logged and the remaining stages still run; one bad event never stalls
// the stream.
type Router struct {
	events data.EventRepository
	engine *diag.Engine
	queue  *broadcast.Queue
}

func New(events data.EventRepository, engine *diag.Engine, queue *broadcast.Queue) *Router {
	return &Router{events: events, engine: engine, queue: queue}
}

// HandleFrame decodes one stream frame and routes every event in it.
// It satisfies stream.FrameHandler.
func (r *Router) HandleFrame(ctx context.Context, payload []byte) {
	events, err := hub.DecodeFrame(payload, nowUTC())
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		log.Printf("[WARN] Router: dropping undecodable frame: %v", err)
		return
	}
	for _, ev := range events {
		r.Route(ctx, ev)
	}
}

// Route runs one event through all pipeline stages.
func (r *Router) Route(ctx context.Context, ev hub.RawEvent) {
	cls := classify(ev)
	metrics.EventsIngestedTotal.WithLabelValues(string(cls.kind)).Inc()

	if err := r.events.InsertEvent(ctx, ev.Timestamp, ev.ResourceID, ev.Type, ev.Payload); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("insert_event").Inc()
		log.Printf("[ERROR] Router: persist event %s: %v", ev.EventID, err)
	}

	// Every event proves the device is alive, whatever its kind.
	if err := r.engine.Touch(ctx, ev.ResourceID, ev.Timestamp); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("touch_device").Inc()
		log.Printf("[ERROR] Router: touch device %s: %v", ev.ResourceID, err)
	}

	switch cls.kind {
	case KindConnectivity:
		if err := r.engine.ApplyConnectivity(ctx, ev.ResourceID, cls.status, ev.Timestamp); err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("diag_connectivity").Inc()
			log.Printf("[ERROR] Router: connectivity diagnostics for %s: %v", ev.ResourceID, err)
		}
	case KindBattery:
		if err := r.engine.ApplyBattery(ctx, ev.ResourceID, cls.battery, ev.Timestamp); err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("diag_battery").Inc()
			log.Printf("[ERROR] Router: battery diagnostics for %s: %v", ev.ResourceID, err)
		}
	case KindMotion, KindUnknown:
		// No diagnostics beyond the last-seen touch.
	}

	r.queue.Publish(ev)
}
