package scanner

import "github.com/rewired-gh/gapwatch/internal/models"

// Scoring thresholds. Points are additive and the total is capped at 100.
const (
	shortFloatBase   = 10.0
	shortFloatStrong = 20.0

	rvolBase   = 1.5
	rvolStrong = 2.5

	gapMin       = 1.0
	gapMax       = 40.0
	gapSweetMin  = 5.0
	gapSweetMax  = 20.0
	atrMin       = 4.0
	atrMax       = 25.0
	minAvgDollar = 500_000.0
	goodAvgDolar = 1_000_000.0
	momentumMin  = 3.0

	maxScore = 100
)

// Score computes the composite 0-100 quality score of a candidate from its
// short float, RVOL, gap, ATR%, average dollar volume and momentum.
func Score(c *models.Candidate) int {
	score := 0

	if c.ShortFloatPct >= shortFloatBase {
		score += 20
		if c.ShortFloatPct >= shortFloatStrong {
			score += 8
		}
	}

	if c.RVOL != nil {
		if *c.RVOL >= rvolBase {
			score += 20
		}
		if *c.RVOL >= rvolStrong {
			score += 10
		}
	}

	if c.GapPct != nil && *c.GapPct >= gapMin && *c.GapPct <= gapMax {
		score += 20
		if *c.GapPct >= gapSweetMin && *c.GapPct <= gapSweetMax {
			score += 10
		}
	}

	if c.ATRPct != nil && *c.ATRPct >= atrMin && *c.ATRPct <= atrMax {
		score += 15
	}

	if c.AvgDollarVol != nil {
		if *c.AvgDollarVol >= minAvgDollar {
			score += 10
		}
		if *c.AvgDollarVol >= goodAvgDolar {
			score += 5
		}
	}

	if c.MomentumPct >= momentumMin {
		score += 10
	}

	return min(score, maxScore)
}
