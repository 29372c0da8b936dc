package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/technosupport/ts-hubmon/internal/stream"
)

// Conn is the publishing slice of *nats.Conn.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher pushes stream state transitions onto a NATS subject so
// other services can react to hub outages without polling our API.
type NATSPublisher struct {
	conn       Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

const retryDelay = 100 * time.Millisecond

// StreamStatus implements stream.StatusSink. The publish runs on its
// own goroutine; a slow or partitioned NATS server never holds up the
// stream loop.
func (p *NATSPublisher) StreamStatus(_ context.Context, change stream.StatusChange) {
	data, err := json.Marshal(change)
	if err != nil {
		log.Printf("[WARN] Notify: marshal status change: %v", err)
		return
	}
	go p.publish(data)
}

func (p *NATSPublisher) publish(data []byte) {
	delay := retryDelay
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err = p.conn.Publish(p.subject, data); err == nil {
			return
		}
		if attempt < p.maxRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	log.Printf("[WARN] Notify: publish to %s failed after %d attempts: %v",
		p.subject, p.maxRetries+1, err)
}
