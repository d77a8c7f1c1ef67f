package stream

import "time"

// Backoff yields exponentially growing reconnect delays, doubling from min up to max.
type Backoff struct {
	min, max time.Duration
	next     time.Duration
}

func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = time.Second
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{min: floor, max: ceiling, next: floor}
}

// Next returns the delay to wait now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	return d
}

// Reset starts the sequence over from min.
func (b *Backoff) Reset() {
	b.next = b.min
}
