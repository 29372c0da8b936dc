package stream

import "time"

// Backoff produces reconnect delays: doubling from base up to ceiling.
// Delays never decrease between consecutive failures; only an explicit
// Reset (after a healthy streaming period) returns to base.
type Backoff struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func NewBackoff(base, ceiling time.Duration) *Backoff {
	if base <= 0 {
		base = 2 * time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	return &Backoff{base: base, ceiling: ceiling, current: base}
}

// Next returns the delay to wait before the next attempt and advances
// the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return d
}

// Reset returns the schedule to the base delay.
func (b *Backoff) Reset() {
	b.current = b.base
}

// Current reports the delay Next would return, without advancing.
func (b *Backoff) Current() time.Duration {
	return b.current
}
