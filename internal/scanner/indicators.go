package scanner

import (
	"math"

	"github.com/rewired-gh/gapwatch/internal/models"
)

const (
	atrPeriod   = 14
	avgVolumeN  = 10
	minATRBars  = atrPeriod + 1
	pctMultiple = 100.0
)

// ATRPercent returns ATR(14) as a percentage of the latest close: the mean of
// the last 14 true ranges, where true range is
// max(high-low, |high-prevClose|, |low-prevClose|). It needs at least 15 bars.
func ATRPercent(c *models.Candles) (float64, bool) {
	n := c.Len()
	if n < minATRBars {
		return 0, false
	}

	trs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		high, low, prevClose := c.High[i], c.Low[i], c.Close[i-1]
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}

	var sum float64
	for _, tr := range trs[len(trs)-atrPeriod:] {
		sum += tr
	}
	atr := sum / atrPeriod

	lastClose := c.Close[n-1]
	if lastClose <= 0 {
		return 0, false
	}
	return atr / lastClose * pctMultiple, true
}

// AvgDollarVolume returns mean(close*volume) over the last 10 bars.
func AvgDollarVolume(c *models.Candles) (float64, bool) {
	if c == nil {
		return 0, false
	}
	n := minLen(c.Close, c.Volume)
	if n < avgVolumeN {
		return 0, false
	}
	var sum float64
	for i := n - avgVolumeN; i < n; i++ {
		sum += c.Close[i] * c.Volume[i]
	}
	return sum / avgVolumeN, true
}

// AverageVolume returns the mean share volume over the last 10 bars.
func AverageVolume(c *models.Candles) (float64, bool) {
	if c == nil || len(c.Volume) < avgVolumeN {
		return 0, false
	}
	var sum float64
	for _, v := range c.Volume[len(c.Volume)-avgVolumeN:] {
		sum += v
	}
	return sum / avgVolumeN, true
}

// ShortFloatFields are the fundamentals keys probed for short float, in order.
var ShortFloatFields = []string{
	"shortPercentFloat", "ShortPercentFloat",
	"shortRatio", "ShortRatio",
	"ShortInterestFloat", "shortInterestFloat",
	"shortInterestPercentFloat", "ShortPercentOfFloat",
}

// ShortFloatPct returns the first short-float field present, normalized to a
// percentage. Values <= 1.0 are taken to be fractions and scaled by 100.
//
// Known accuracy risk: a genuine short float below 1% is indistinguishable
// from a fraction and gets inflated. shortRatio is days-to-cover, not a
// percentage, but is still probed as a fallback.
func ShortFloatPct(f *models.Fundamentals) (float64, bool) {
	if f == nil {
		return 0, false
	}
	for _, k := range ShortFloatFields {
		v, ok := f.Metrics[k]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v <= 1.0 {
			v *= pctMultiple
		}
		return v, true
	}
	return 0, false
}

func minLen(cols ...[]float64) int {
	if len(cols) == 0 {
		return 0
	}
	n := len(cols[0])
	for _, c := range cols[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	return n
}
