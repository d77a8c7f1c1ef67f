// Package stream runs the tick-driven alert state machine over a live trade feed.
package stream

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/gapwatch/internal/alert"
	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
)

// priceEpsilon is the tolerance for treating two prices as equal.
const priceEpsilon = 1e-6

type Config struct {
	PriceWindow       time.Duration
	Cooldown          time.Duration
	CooldownExpiry    time.Duration
	RVOLTrigger       float64
	RVOLChangeTrigger float64
	HODChangeTrigger  float64
}

func DefaultConfig() Config {
	return Config{
		PriceWindow:       30 * time.Minute,
		Cooldown:          5 * time.Minute,
		CooldownExpiry:    time.Hour,
		RVOLTrigger:       2.0,
		RVOLChangeTrigger: 4.0,
		HODChangeTrigger:  3.0,
	}
}

type pricePoint struct {
	at    time.Time
	price float64
}

// symbolState is the tick-owned part of a symbol's alert state. localHOD
// survives reconnects and only resets with the process.
type symbolState struct {
	window    []pricePoint
	lastPrice float64
	hasLast   bool
	localHOD  float64
	hasHOD    bool
}

// tick is everything a tier rule needs to decide on one accepted trade.
type tick struct {
	candidate *models.Candidate
	at        time.Time
	price     float64
	avgPrice  float64
	changePct float64
	bucket    int
	newHOD    bool
}

// trigger is one alert candidate together with its cooldown key.
type trigger struct {
	key   string
	alert alert.Alert
}

type tierRule interface {
	triggers(t tick) []trigger
}

// fullAlertRule fires a full alert on every new percentage band.
type fullAlertRule struct{}

func (fullAlertRule) triggers(t tick) []trigger {
	a := baseAlert(alert.KindFull, t)
	a.Note = Recommendation(t.price, t.avgPrice, t.changePct)
	return []trigger{{key: fmt.Sprintf("FULL_%s_%d", t.candidate.Symbol, t.bucket), alert: a}}
}

// headsUpRule fires conditional heads-ups: strong RVOL with a strong move, or a
// fresh local high with momentum above the moving average.
type headsUpRule struct {
	rvolMin       float64
	rvolChangeMin float64
	hodChangeMin  float64
}

func (r headsUpRule) triggers(t tick) []trigger {
	var out []trigger
	head := fmt.Sprintf("HEAD_%s_%d", t.candidate.Symbol, t.bucket)

	if t.candidate.RVOLOrZero() >= r.rvolMin && t.changePct >= r.rvolChangeMin {
		a := baseAlert(alert.KindHeadsUpRVOL, t)
		a.Note = "RVOL & change"
		out = append(out, trigger{key: head + "_RVOL", alert: a})
	}
	if t.newHOD && t.changePct >= r.hodChangeMin && t.price > t.avgPrice {
		a := baseAlert(alert.KindHeadsUpHOD, t)
		a.Note = "new local high + momentum"
		out = append(out, trigger{key: head + "_HOD", alert: a})
	}
	return out
}

func baseAlert(kind alert.Kind, t tick) alert.Alert {
	return alert.Alert{
		Kind:      kind,
		Symbol:    t.candidate.Symbol,
		Price:     t.price,
		At:        t.at,
		Open:      t.candidate.Open,
		MovingAvg: t.avgPrice,
		ChangePct: t.changePct,
		Candidate: t.candidate,
	}
}

// Processor owns the per-symbol tick state and cooldowns. It is driven by a
// single reader and is not safe for concurrent use.
type Processor struct {
	candidates map[string]*models.Candidate
	rules      map[models.Tier]tierRule
	states     map[string]*symbolState
	cooldown   *alert.Cooldown
	emitter    alert.Emitter
	config     Config
}

func NewProcessor(candidates []models.Candidate, emitter alert.Emitter, config Config) *Processor {
	bySymbol := make(map[string]*models.Candidate, len(candidates))
	for i := range candidates {
		c := candidates[i]
		bySymbol[c.Symbol] = &c
	}

	return &Processor{
		candidates: bySymbol,
		rules: map[models.Tier]tierRule{
			models.TierA: fullAlertRule{},
			models.TierB: headsUpRule{
				rvolMin:       config.RVOLTrigger,
				rvolChangeMin: config.RVOLChangeTrigger,
				hodChangeMin:  config.HODChangeTrigger,
			},
		},
		states:   make(map[string]*symbolState),
		cooldown: alert.NewCooldown(config.Cooldown, config.CooldownExpiry),
		emitter:  emitter,
		config:   config,
	}
}

// Symbols returns the symbols the processor reacts to.
func (p *Processor) Symbols() []string {
	out := make([]string, 0, len(p.candidates))
	for sym := range p.candidates {
		out = append(out, sym)
	}
	return out
}

// HandleBatch processes trades in arrival order. now is the receive time and
// drives both the price window and the cooldowns.
func (p *Processor) HandleBatch(ctx context.Context, now time.Time, trades []models.Trade) {
	if n := p.cooldown.Purge(now); n > 0 {
		logger.Debug("Purged %d stale cooldown keys, %d tracked", n, p.cooldown.Len())
	}
	for _, tr := range trades {
		p.handle(ctx, now, tr)
	}
}

func (p *Processor) handle(ctx context.Context, now time.Time, tr models.Trade) {
	c, ok := p.candidates[tr.Symbol]
	if !ok || c.Open <= 0 {
		return
	}
	price := tr.Price

	st := p.states[tr.Symbol]
	if st == nil {
		st = &symbolState{}
		p.states[tr.Symbol] = st
	}

	if !st.hasHOD || price > st.localHOD {
		st.localHOD = price
		st.hasHOD = true
	}

	if st.hasLast && math.Abs(price-st.lastPrice) < priceEpsilon {
		return
	}
	st.lastPrice = price
	st.hasLast = true

	st.window = append(st.window, pricePoint{at: now, price: price})
	st.trim(now, p.config.PriceWindow)
	if len(st.window) == 0 {
		return
	}

	changePct := (price - c.Open) / c.Open * 100
	t := tick{
		candidate: c,
		at:        now,
		price:     price,
		avgPrice:  st.average(),
		changePct: changePct,
		bucket:    int(changePct),
		newHOD:    math.Abs(price-st.localHOD) < priceEpsilon,
	}

	rule, ok := p.rules[c.Tier]
	if !ok {
		return
	}
	for _, trg := range rule.triggers(t) {
		if p.cooldown.Allow(trg.key, now) {
			p.emitter.Emit(ctx, trg.alert)
		}
	}
}

// trim drops points older than window.
func (s *symbolState) trim(now time.Time, window time.Duration) {
	i := 0
	for i < len(s.window) && now.Sub(s.window[i].at) > window {
		i++
	}
	if i > 0 {
		s.window = append(s.window[:0], s.window[i:]...)
	}
}

func (s *symbolState) average() float64 {
	var sum float64
	for _, pt := range s.window {
		sum += pt.price
	}
	return sum / float64(len(s.window))
}

// Recommendation tags a full alert by how stretched the move is.
func Recommendation(price, avgPrice, changePct float64) string {
	changePct = math.Round(changePct*100) / 100
	switch {
	case price >= avgPrice*2:
		return "scalp-only sharp move"
	case changePct >= 8:
		return "sharp rise, possible pullback"
	case changePct >= 3:
		return "positive momentum"
	default:
		return "neutral"
	}
}
