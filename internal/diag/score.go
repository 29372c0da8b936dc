package diag

import "time"

// Health score weights. The score is a relative ranking signal, not a
// calibrated probability; higher means more likely to need attention.
const (
	weightDisconnects = 3
	weightDowntime    = 2
	weightStale       = 2
	weightBattery     = 2

	downtimeBucketMinutes = 10

	// A device not heard from for longer than this is considered stale.
	StaleAfter = time.Hour
)

// Score computes the health score from aggregated diagnostics. It is a
// pure function of its inputs so the same aggregates always score the
// same; nothing is persisted.
func Score(disconnects, downtimeMinutes int, stale, batteryLow bool) int {
	s := weightDisconnects * disconnects
	s += weightDowntime * (downtimeMinutes / downtimeBucketMinutes)
	if stale {
		s += weightStale
	}
	if batteryLow {
		s += weightBattery
	}
	return s
}
