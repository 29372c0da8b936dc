package catalog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/metrics"
)

// Fetcher is the slice of the hub client the refresher needs.
type Fetcher interface {
	FetchDevices(ctx context.Context) ([]hub.CatalogDevice, error)
}

// Refresher keeps the device catalog in sync with the hub's
// authoritative device list, on a timer and on demand.
type Refresher struct {
	fetcher  Fetcher
	devices  data.DeviceRepository
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRefresher(fetcher Fetcher, devices data.DeviceRepository, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{
		fetcher:  fetcher,
		devices:  devices,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (r *Refresher) Start() {
	r.wg.Add(1)
	go r.runLoop()
}

func (r *Refresher) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Refresher) runLoop() {
	defer r.wg.Done()

	// Seed the catalog right away so the API has names before the
	// first tick.
	if _, err := r.RefreshOnce(context.Background()); err != nil {
		log.Printf("[WARN] Catalog: initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if _, err := r.RefreshOnce(context.Background()); err != nil {
				log.Printf("[WARN] Catalog: refresh failed: %v", err)
			}
		}
	}
}

// RefreshOnce fetches the device list and upserts every entry,
// returning how many were applied. Known devices missing from the list
// are kept; history outlives the catalog.
func (r *Refresher) RefreshOnce(ctx context.Context) (int, error) {
	devices, err := r.fetcher.FetchDevices(ctx)
	if err != nil {
		metrics.CatalogRefreshTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	applied := 0
	for _, d := range devices {
		if err := r.devices.UpsertDevice(ctx, d.RID, d.Name, d.ProductType); err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("upsert_device").Inc()
			log.Printf("[ERROR] Catalog: upsert device %s: %v", d.RID, err)
			continue
		}
		applied++
	}
	metrics.CatalogRefreshTotal.WithLabelValues("ok").Inc()
	log.Printf("Catalog: refreshed %d devices", applied)
	return applied, nil
}
