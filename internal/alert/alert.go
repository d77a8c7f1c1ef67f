// Package alert defines the alert emitter boundary shared by the real-time
// components: the alert value, cooldown bookkeeping, message formatting and
// the dispatcher that hands formatted text to the notifier.
package alert

import (
	"context"
	"time"

	"github.com/rewired-gh/gapwatch/internal/models"
)

type Kind string

const (
	KindFull        Kind = "full"
	KindHeadsUpRVOL Kind = "headsup_rvol"
	KindHeadsUpHOD  Kind = "headsup_hod"
	KindVWAPReclaim Kind = "vwap_reclaim"
	KindVolumeSpike Kind = "volume_spike"
	KindHODBreakout Kind = "hod_breakout"
)

// FromStream reports whether the kind is raised by the tick stream.
func (k Kind) FromStream() bool {
	return k == KindFull || k == KindHeadsUpRVOL || k == KindHeadsUpHOD
}

// Alert is a single alert decision. Tick-stream alerts fill Open, MovingAvg
// and ChangePct; poller alerts fill the candle-derived fields.
type Alert struct {
	Kind   Kind
	Symbol string
	Price  float64
	At     time.Time

	Open      float64
	MovingAvg float64
	ChangePct float64
	// Note is the recommendation tag or heads-up reason.
	Note string

	VWAP        float64
	Volume      float64
	AvgVolume   float64
	Change5mPct *float64
	HOD         float64

	// Candidate carries the scan metrics shown in the advanced line.
	Candidate *models.Candidate
}

// Emitter accepts alerts for delivery. Implementations must not block the caller
// on delivery.
type Emitter interface {
	Emit(ctx context.Context, a Alert)
}
