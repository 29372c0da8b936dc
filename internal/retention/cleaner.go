package retention

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-hubmon/internal/data"
)

const sweepInterval = 6 * time.Hour

// Cleaner deletes raw events older than the retention window.
// Diagnostic records are never cleaned; they are small and are the
// long-term history.
type Cleaner struct {
	events data.EventRepository
	keep   time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewCleaner(events data.EventRepository, keepDays int) *Cleaner {
	if keepDays <= 0 {
		keepDays = 30
	}
	return &Cleaner{
		events:   events,
		keep:     time.Duration(keepDays) * 24 * time.Hour,
		stopChan: make(chan struct{}),
	}
}

func (c *Cleaner) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

func (c *Cleaner) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}

func (c *Cleaner) runLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cleaner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-c.keep)
	deleted, err := c.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[ERROR] Retention: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention: deleted %d events older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
