// Package models defines the core domain entities: scan candidates and market data.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Tier is the alert urgency class assigned from a candidate's score.
type Tier string

const (
	// TierA candidates get an immediate full alert on every new percentage band.
	TierA Tier = "A"
	// TierB candidates only get conditional heads-up alerts.
	TierB Tier = "B"
)

// Score boundaries for tier assignment.
const (
	MinScore   = 50
	TierAScore = 70
)

// TierFor maps a composite score to its tier. ok is false for scores below MinScore.
func TierFor(score int) (tier Tier, ok bool) {
	switch {
	case score >= TierAScore:
		return TierA, true
	case score >= MinScore:
		return TierB, true
	default:
		return "", false
	}
}

// Candidate is one symbol that survived both scan stages. It is immutable for
// the lifetime of a run once the scan completes.
type Candidate struct {
	Symbol string `json:"symbol"`

	Open      float64 `json:"open"`
	Price     float64 `json:"price"`
	PrevClose float64 `json:"prev_close"`
	MarketCap float64 `json:"market_cap"`

	// GapPct is nil when the previous close is not positive.
	GapPct      *float64 `json:"gap_pct,omitempty"`
	MomentumPct float64  `json:"momentum_pct"`

	ShortFloatPct  float64  `json:"short_float_pct"`
	IntradayVolume int64    `json:"intraday_volume"`
	RVOL           *float64 `json:"rvol,omitempty"`
	ATRPct         *float64 `json:"atr_pct,omitempty"`
	AvgDollarVol   *float64 `json:"avg_dollar_vol_10d,omitempty"`

	Score int  `json:"score"`
	Tier  Tier `json:"tier"`

	ScannedAt time.Time `json:"scanned_at"`
}

// RVOLOrZero returns the relative volume, treating an unknown value as zero.
func (c *Candidate) RVOLOrZero() float64 {
	if c.RVOL == nil {
		return 0
	}
	return *c.RVOL
}

// Validate checks candidate field constraints.
func (c *Candidate) Validate() error {
	if c.Symbol == "" {
		return errors.New("candidate symbol must not be empty")
	}
	if c.Score < MinScore || c.Score > 100 {
		return fmt.Errorf("candidate score %d outside [%d, 100]", c.Score, MinScore)
	}
	tier, _ := TierFor(c.Score)
	if c.Tier != tier {
		return fmt.Errorf("candidate tier %q does not match score %d", c.Tier, c.Score)
	}
	if c.Price <= 0 {
		return errors.New("candidate price must be positive")
	}
	return nil
}

// Float returns a pointer to v. Used for the optional candidate metrics.
func Float(v float64) *float64 {
	return &v
}
