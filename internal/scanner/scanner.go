// Package scanner filters and scores the tradable universe into ranked candidates.
package scanner

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
)

// MarketData is the subset of the market data gateway the scanner reads.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Profile(ctx context.Context, symbol string) (*models.Profile, error)
	Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
	Candles(ctx context.Context, symbol string, res models.Resolution, from, to time.Time) (*models.Candles, error)
}

type Config struct {
	MinPrice          float64
	MaxPrice          float64
	MaxMarketCap      float64
	MinShortFloatPct  float64
	MinIntradayVolume float64
	Stage1Workers     int
	Stage2Workers     int
	IntradayLookback  time.Duration
	DailyLookback     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinPrice:          0.30,
		MaxPrice:          15.00,
		MaxMarketCap:      1_500_000_000,
		MinShortFloatPct:  10,
		MinIntradayVolume: 50_000,
		Stage1Workers:     6,
		Stage2Workers:     4,
		IntradayLookback:  4 * time.Hour,
		// 35 calendar days cover the 30 trading bars ATR(14) and the 10-day averages need.
		DailyLookback: 35 * 24 * time.Hour,
	}
}

type Scanner struct {
	md     MarketData
	config Config
	now    func() time.Time
}

func New(md MarketData, config Config) *Scanner {
	return &Scanner{md: md, config: config, now: time.Now}
}

// Scan runs both stages over universe and returns at most limit candidates
// sorted by score, highest first. Per-symbol failures reject that symbol only.
func (s *Scanner) Scan(ctx context.Context, universe []string, limit int) []models.Candidate {
	if limit <= 0 || len(universe) == 0 {
		return []models.Candidate{}
	}

	started := s.now()
	partials := s.runStage1(ctx, universe)
	logger.Info("Stage 1: %d/%d symbols passed price and market cap filters", len(partials), len(universe))

	candidates := s.runStage2(ctx, partials, limit)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	logger.Info("Scan finished: %d candidates in %v", len(candidates), s.now().Sub(started).Round(time.Millisecond))
	return candidates
}

func (s *Scanner) runStage1(ctx context.Context, universe []string) []models.Candidate {
	results := make([]*models.Candidate, len(universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.Stage1Workers, 1))
	for i, sym := range universe {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = s.stage1(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	// Keep universe order so the stage 2 early stop favours priority tickers.
	partials := make([]models.Candidate, 0, len(universe)/4)
	for _, c := range results {
		if c != nil {
			partials = append(partials, *c)
		}
	}
	return partials
}

// stage1 applies the cheap price and market cap filters. nil means rejected.
func (s *Scanner) stage1(ctx context.Context, symbol string) *models.Candidate {
	profile, err := s.md.Profile(ctx, symbol)
	if err != nil {
		logger.Debug("stage1 %s: profile: %v", symbol, err)
		return nil
	}
	if profile.MarketCap <= 0 || profile.MarketCap > s.config.MaxMarketCap {
		return nil
	}

	quote, err := s.md.Quote(ctx, symbol)
	if err != nil {
		logger.Debug("stage1 %s: quote: %v", symbol, err)
		return nil
	}
	price := quote.Current
	if price < s.config.MinPrice || price > s.config.MaxPrice {
		return nil
	}

	c := &models.Candidate{
		Symbol:    symbol,
		Open:      quote.Open,
		Price:     price,
		PrevClose: quote.PrevClose,
		MarketCap: profile.MarketCap,
	}
	if quote.PrevClose > 0 {
		c.GapPct = models.Float((price - quote.PrevClose) / quote.PrevClose * 100)
	}
	if quote.Open > 0 {
		c.MomentumPct = (price - quote.Open) / quote.Open * 100
	}
	return c
}

func (s *Scanner) runStage2(ctx context.Context, partials []models.Candidate, limit int) []models.Candidate {
	var (
		mu         sync.Mutex
		candidates []models.Candidate
		accepted   atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.Stage2Workers, 1))
	for _, p := range partials {
		// Best-effort early stop: work already dispatched still finishes.
		if accepted.Load() >= int64(limit) || gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, ok := s.stage2(gctx, p)
			if !ok {
				return nil
			}
			accepted.Add(1)
			mu.Lock()
			candidates = append(candidates, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return candidates
}

// stage2 applies the short float and intraday volume filters, then derives the
// daily-bar metrics and scores the candidate.
func (s *Scanner) stage2(ctx context.Context, c models.Candidate) (models.Candidate, bool) {
	fundamentals, err := s.md.Fundamentals(ctx, c.Symbol)
	if err != nil {
		logger.Debug("stage2 %s: fundamentals: %v", c.Symbol, err)
		return c, false
	}
	shortFloat, ok := ShortFloatPct(fundamentals)
	if !ok || shortFloat < s.config.MinShortFloatPct {
		return c, false
	}
	c.ShortFloatPct = shortFloat

	now := s.now()
	intraday, err := s.md.Candles(ctx, c.Symbol, models.Resolution5Min, now.Add(-s.config.IntradayLookback), now)
	if err != nil {
		logger.Debug("stage2 %s: intraday candles: %v", c.Symbol, err)
		return c, false
	}
	var volume float64
	for _, v := range intraday.Volume {
		volume += v
	}
	if volume < s.config.MinIntradayVolume {
		return c, false
	}
	c.IntradayVolume = int64(volume)

	// Daily metrics only affect scoring; a missing series leaves them unset.
	daily, err := s.md.Candles(ctx, c.Symbol, models.ResolutionDaily, now.Add(-s.config.DailyLookback), now)
	if err != nil {
		logger.Debug("stage2 %s: daily candles: %v", c.Symbol, err)
	} else {
		if atr, ok := ATRPercent(daily); ok {
			c.ATRPct = models.Float(atr)
		}
		if adv, ok := AvgDollarVolume(daily); ok {
			c.AvgDollarVol = models.Float(adv)
		}
		if avgVol, ok := AverageVolume(daily); ok && avgVol > 0 {
			c.RVOL = models.Float(volume / avgVol)
		}
	}

	c.Score = Score(&c)
	tier, ok := models.TierFor(c.Score)
	if !ok {
		return c, false
	}
	c.Tier = tier
	c.ScannedAt = now
	return c, true
}
