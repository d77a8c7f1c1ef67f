// Package poller re-derives VWAP, volume and high-of-day signals from
// one-minute candles on a fixed interval, independently of the trade stream.
package poller

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/gapwatch/internal/alert"
	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
	"github.com/rewired-gh/gapwatch/internal/session"
)

// CandleSource fetches OHLCV bars.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, res models.Resolution, from, to time.Time) (*models.Candles, error)
}

// HealthReporter is told about the first failed cycle of a streak and about
// the recovery that ends it.
type HealthReporter interface {
	SendError(err error) error
	SendRecovery(failureCount int) error
}

type Config struct {
	Interval      time.Duration
	MinBars       int
	AvgVolumeBars int
	SpikeMultiple float64
	HODBuffer     float64
}

func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		MinBars:       3,
		AvgVolumeBars: 20,
		SpikeMultiple: 3.0,
		HODBuffer:     0.001,
	}
}

// vwapSide is the last known position of the close relative to VWAP.
type vwapSide int

const (
	sideUnknown vwapSide = iota
	sideAbove
	sideBelow
)

// symbolState is owned by the poller alone; the stream keeps its own.
type symbolState struct {
	side    vwapSide
	lastHOD float64
}

type Poller struct {
	source     CandleSource
	candidates []models.Candidate
	states     map[string]*symbolState
	emitter    alert.Emitter
	health     HealthReporter
	config     Config
	now        func() time.Time
}

// New creates a poller over candidates. health may be nil.
func New(source CandleSource, candidates []models.Candidate, emitter alert.Emitter, health HealthReporter, config Config) *Poller {
	return &Poller{
		source:     source,
		candidates: candidates,
		states:     make(map[string]*symbolState),
		emitter:    emitter,
		health:     health,
		config:     config,
		now:        time.Now,
	}
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	logger.Info("Starting metrics poller (interval: %v, symbols: %d)", p.config.Interval, len(p.candidates))

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Metrics cycle failed: %v", err)
			if consecutiveFailures == 1 && p.health != nil {
				if sendErr := p.health.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && p.health != nil {
			if sendErr := p.health.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleCycleResult(p.PollOnce(ctx))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Metrics poller stopped")
			return nil
		case <-ticker.C:
			handleCycleResult(p.PollOnce(ctx))
		}
	}
}

// PollOnce runs one cycle over every candidate in list order. A symbol's
// failure is logged and skipped; the cycle errors only if every symbol failed.
// Outside the weekday 04:00-20:00 ET day there are no bars and the cycle is a no-op.
func (p *Poller) PollOnce(ctx context.Context) error {
	if len(p.candidates) == 0 {
		return nil
	}

	now := p.now()
	if !session.Trading(now) {
		logger.Debug("Market closed at %s, skipping metrics cycle", now.In(session.Location()).Format("Mon 15:04"))
		return nil
	}
	from, _ := session.Bounds(now)

	failed := 0
	var lastErr error
	for i := range p.candidates {
		if ctx.Err() != nil {
			return nil
		}
		c := &p.candidates[i]

		candles, err := p.source.Candles(ctx, c.Symbol, models.Resolution1Min, from, now)
		if err != nil {
			failed++
			lastErr = err
			logger.Warn("poller %s: candles: %v", c.Symbol, err)
			continue
		}

		for _, a := range p.evaluate(c, candles, now) {
			p.emitter.Emit(ctx, a)
		}
	}

	if failed == len(p.candidates) {
		return fmt.Errorf("all %d symbols failed: %w", failed, lastErr)
	}
	return nil
}

// evaluate updates the symbol's state from candles and returns the signals that fired.
func (p *Poller) evaluate(c *models.Candidate, candles *models.Candles, now time.Time) []alert.Alert {
	n := candles.Len()
	if n < p.config.MinBars {
		logger.Debug("poller %s: %d bars, need %d", c.Symbol, n, p.config.MinBars)
		return nil
	}
	closes, volumes := candles.Close[:n], candles.Volume[:n]
	last, lastVolume := closes[n-1], volumes[n-1]

	vwap, vwapOK := VWAP(closes, volumes)
	avgVolume := AverageVolume(volumes, p.config.AvgVolumeBars)
	hod := maxOf(candles.High[:n])

	st := p.states[c.Symbol]
	if st == nil {
		st = &symbolState{side: sideUnknown, lastHOD: hod}
		p.states[c.Symbol] = st
	}

	base := alert.Alert{Symbol: c.Symbol, Price: last, At: now, Candidate: c}
	var out []alert.Alert

	if vwapOK {
		side := sideBelow
		if last > vwap {
			side = sideAbove
		}
		if st.side == sideBelow && side == sideAbove {
			a := base
			a.Kind = alert.KindVWAPReclaim
			a.VWAP = vwap
			a.Volume = lastVolume
			a.AvgVolume = avgVolume
			out = append(out, a)
		}
		st.side = side
	}

	if avgVolume > 0 && lastVolume >= p.config.SpikeMultiple*avgVolume {
		a := base
		a.Kind = alert.KindVolumeSpike
		a.Volume = lastVolume
		a.AvgVolume = avgVolume
		if n >= 6 && closes[n-6] != 0 {
			a.Change5mPct = models.Float((last - closes[n-6]) / closes[n-6] * 100)
		}
		out = append(out, a)
	}

	prevHOD := st.lastHOD
	if !math.IsInf(last, 0) && !math.IsNaN(last) && last > prevHOD*(1+p.config.HODBuffer) {
		a := base
		a.Kind = alert.KindHODBreakout
		a.HOD = prevHOD
		out = append(out, a)
		st.lastHOD = last
	} else {
		st.lastHOD = math.Max(prevHOD, hod)
	}

	return out
}

// VWAP returns sum(close*volume)/sum(volume). ok is false when no volume traded.
func VWAP(closes, volumes []float64) (float64, bool) {
	var num, den float64
	for i := 0; i < len(closes) && i < len(volumes); i++ {
		num += closes[i] * volumes[i]
		den += volumes[i]
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// AverageVolume is the mean of the window bars completed before the latest
// one. With fewer than window+1 bars it falls back to the mean of every bar.
func AverageVolume(volumes []float64, window int) float64 {
	n := len(volumes)
	if n == 0 {
		return 0
	}
	if n >= window+1 {
		return mean(volumes[n-window-1 : n-1])
	}
	return mean(volumes)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}
