package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/gapwatch/internal/models"
)

var errNoData = errors.New("no data")

type fakeMarket struct {
	quotes       map[string]*models.Quote
	profiles     map[string]*models.Profile
	fundamentals map[string]*models.Fundamentals
	intraday     map[string]*models.Candles
	daily        map[string]*models.Candles

	fundamentalCalls atomic.Int32
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		quotes:       make(map[string]*models.Quote),
		profiles:     make(map[string]*models.Profile),
		fundamentals: make(map[string]*models.Fundamentals),
		intraday:     make(map[string]*models.Candles),
		daily:        make(map[string]*models.Candles),
	}
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (*models.Quote, error) {
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return nil, errNoData
}

func (f *fakeMarket) Profile(_ context.Context, symbol string) (*models.Profile, error) {
	if p, ok := f.profiles[symbol]; ok {
		return p, nil
	}
	return nil, errNoData
}

func (f *fakeMarket) Fundamentals(_ context.Context, symbol string) (*models.Fundamentals, error) {
	f.fundamentalCalls.Add(1)
	if m, ok := f.fundamentals[symbol]; ok {
		return m, nil
	}
	return nil, errNoData
}

func (f *fakeMarket) Candles(_ context.Context, symbol string, res models.Resolution, _, _ time.Time) (*models.Candles, error) {
	src := f.intraday
	if res == models.ResolutionDaily {
		src = f.daily
	}
	if c, ok := src[symbol]; ok {
		return c, nil
	}
	return nil, errNoData
}

// addSymbol registers a symbol with a 2% gap, zero momentum, ATR% of 10 and
// 80,000 shares of intraday volume. Daily volume is chosen so RVOL equals rvol.
func (f *fakeMarket) addSymbol(sym string, price, marketCap, shortFloat, rvol float64) {
	f.profiles[sym] = &models.Profile{Name: sym, MarketCap: marketCap}
	f.quotes[sym] = &models.Quote{Current: price, Open: price, PrevClose: price / 1.02}
	f.fundamentals[sym] = &models.Fundamentals{Metrics: map[string]float64{"shortPercentFloat": shortFloat}}
	f.intraday[sym] = &models.Candles{Volume: []float64{10_000, 10_000, 10_000, 10_000, 10_000, 10_000, 10_000, 10_000}}

	daily := &models.Candles{}
	for range 30 {
		daily.Open = append(daily.Open, price)
		daily.High = append(daily.High, price*1.05)
		daily.Low = append(daily.Low, price*0.95)
		daily.Close = append(daily.Close, price)
		daily.Volume = append(daily.Volume, 80_000/rvol)
	}
	f.daily[sym] = daily
}

func newTestScanner(md MarketData) *Scanner {
	s := New(md, DefaultConfig())
	s.now = func() time.Time { return time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC) }
	return s
}

func TestScore_ExampleScenario(t *testing.T) {
	c := &models.Candidate{
		Symbol:        "ABCD",
		Open:          2.00,
		PrevClose:     1.80,
		MarketCap:     50_000_000,
		GapPct:        models.Float(11.1),
		MomentumPct:   5,
		ShortFloatPct: 25,
		RVOL:          models.Float(3.0),
		ATRPct:        models.Float(10),
		AvgDollarVol:  models.Float(1_200_000),
	}

	score := Score(c)
	assert.Equal(t, 100, score, "128 raw points must be capped")
	tier, ok := models.TierFor(score)
	assert.True(t, ok)
	assert.Equal(t, models.TierA, tier)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		c    models.Candidate
		want int
	}{
		{"nothing", models.Candidate{}, 0},
		{"short float base", models.Candidate{ShortFloatPct: 10}, 20},
		{"short float strong", models.Candidate{ShortFloatPct: 20}, 28},
		{"rvol base", models.Candidate{RVOL: models.Float(1.5)}, 20},
		{"rvol strong", models.Candidate{RVOL: models.Float(2.5)}, 30},
		{"gap lower edge", models.Candidate{GapPct: models.Float(1)}, 20},
		{"gap sweet spot", models.Candidate{GapPct: models.Float(20)}, 30},
		{"gap too large", models.Candidate{GapPct: models.Float(40.1)}, 0},
		{"negative gap", models.Candidate{GapPct: models.Float(-5)}, 0},
		{"atr in range", models.Candidate{ATRPct: models.Float(25)}, 15},
		{"atr too low", models.Candidate{ATRPct: models.Float(3.9)}, 0},
		{"dollar volume base", models.Candidate{AvgDollarVol: models.Float(500_000)}, 10},
		{"dollar volume strong", models.Candidate{AvgDollarVol: models.Float(1_000_000)}, 15},
		{"momentum", models.Candidate{MomentumPct: 3}, 10},
		{"momentum below", models.Candidate{MomentumPct: 2.99}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(&tt.c))
		})
	}
}

func TestATRPercent_Fixture(t *testing.T) {
	// Constant close of 10 and a true range of 0.1*i on bar i, so the last 14
	// true ranges sum to 10.5: ATR 0.75, ATR% 7.5.
	c := &models.Candles{}
	for i := range 15 {
		half := float64(i) * 0.05
		c.Open = append(c.Open, 10)
		c.High = append(c.High, 10+half)
		c.Low = append(c.Low, 10-half)
		c.Close = append(c.Close, 10)
		c.Volume = append(c.Volume, 1000)
	}

	atr, ok := ATRPercent(c)
	require.True(t, ok)
	assert.InDelta(t, 7.5, atr, 1e-9)
}

func TestATRPercent_GapUsesPrevClose(t *testing.T) {
	c := &models.Candles{}
	for i := range 15 {
		c.Open = append(c.Open, 10)
		c.High = append(c.High, 10)
		c.Low = append(c.Low, 10)
		c.Close = append(c.Close, 10)
		c.Volume = append(c.Volume, 1)
		if i == 14 {
			// Gap up: high-low is 0.5 but |high-prevClose| is 2.5.
			c.High[i], c.Low[i], c.Close[i] = 12.5, 12, 12.5
		}
	}

	atr, ok := ATRPercent(c)
	require.True(t, ok)
	assert.InDelta(t, 2.5/14/12.5*100, atr, 1e-9)
}

func TestATRPercent_TooFewBars(t *testing.T) {
	c := &models.Candles{
		Open: make([]float64, 14), High: make([]float64, 14), Low: make([]float64, 14),
		Close: make([]float64, 14), Volume: make([]float64, 14),
	}
	_, ok := ATRPercent(c)
	assert.False(t, ok)
	_, ok = ATRPercent(nil)
	assert.False(t, ok)
}

func TestAverages(t *testing.T) {
	c := &models.Candles{}
	for i := range 12 {
		c.Close = append(c.Close, 2)
		c.Volume = append(c.Volume, float64(i+1)*1000)
	}

	// Last 10 volumes are 3000..12000.
	avgVol, ok := AverageVolume(c)
	require.True(t, ok)
	assert.InDelta(t, 7500, avgVol, 1e-9)

	adv, ok := AvgDollarVolume(c)
	require.True(t, ok)
	assert.InDelta(t, 15_000, adv, 1e-9)

	_, ok = AverageVolume(&models.Candles{Volume: []float64{1, 2}})
	assert.False(t, ok)
}

func TestShortFloatPct(t *testing.T) {
	tests := []struct {
		name    string
		metrics map[string]float64
		want    float64
		wantOK  bool
	}{
		{"percentage", map[string]float64{"shortPercentFloat": 18}, 18, true},
		{"fraction", map[string]float64{"shortPercentFloat": 0.25}, 25, true},
		{"exactly one is a fraction", map[string]float64{"ShortPercentFloat": 1.0}, 100, true},
		{"first known field wins", map[string]float64{"shortRatio": 4, "shortPercentFloat": 30}, 30, true},
		{"fallback field", map[string]float64{"ShortPercentOfFloat": 12}, 12, true},
		{"unknown fields only", map[string]float64{"beta": 1.2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ShortFloatPct(&models.Fundamentals{Metrics: tt.metrics})
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, ok := ShortFloatPct(nil)
	assert.False(t, ok)
}

func TestBuildUniverse(t *testing.T) {
	symbols := []models.Symbol{
		{Symbol: "AAA", Description: "AAA INC"},
		{Symbol: "BBBW", Description: "BBB CORP WARRANT"},
		{Symbol: "CCCU", Description: "CCC ACQUISITION UNIT"},
		{Symbol: "DDDP", Description: "DDD 6% PREFERRED"},
		{Symbol: "EEE", Description: "EEE HOLDINGS"},
		{Symbol: "FFF", Description: "FFF THERAPEUTICS"},
		{Symbol: "AAA", Description: "AAA INC"},
	}

	got := BuildUniverse(symbols, []string{"fff", "ZZZ", "FFF", "BBBW"})
	assert.Equal(t, []string{"FFF", "AAA", "EEE"}, got)

	assert.Equal(t, []string{"AAA", "EEE", "FFF"}, BuildUniverse(symbols, nil))
}

func TestScan_Stage1Boundaries(t *testing.T) {
	fm := newFakeMarket()
	fm.addSymbol("EDGE", 15.00, 50_000_000, 25, 3)
	fm.addSymbol("OVER", 15.01, 50_000_000, 25, 3)
	fm.addSymbol("FLOOR", 0.30, 50_000_000, 25, 3)
	fm.addSymbol("PENNY", 0.29, 50_000_000, 25, 3)
	fm.addSymbol("CAPMAX", 5, 1_500_000_000, 25, 3)
	fm.addSymbol("BIGCAP", 5, 1_500_000_001, 25, 3)
	fm.addSymbol("NOCAP", 5, 0, 25, 3)

	got := newTestScanner(fm).Scan(context.Background(),
		[]string{"EDGE", "OVER", "FLOOR", "PENNY", "CAPMAX", "BIGCAP", "NOCAP"}, 10)

	var symbols []string
	for _, c := range got {
		symbols = append(symbols, c.Symbol)
	}
	assert.ElementsMatch(t, []string{"EDGE", "FLOOR", "CAPMAX"}, symbols)
}

func TestScan_Stage2Filters(t *testing.T) {
	fm := newFakeMarket()
	fm.addSymbol("GOOD", 5, 50_000_000, 25, 3)
	fm.addSymbol("LOWSHORT", 5, 50_000_000, 9.9, 3)
	fm.addSymbol("THIN", 5, 50_000_000, 25, 3)
	fm.intraday["THIN"] = &models.Candles{Volume: []float64{49_999}}
	fm.addSymbol("NODAILY", 5, 50_000_000, 25, 3)
	delete(fm.daily, "NODAILY")
	fm.quotes["NODAILY"].Open = 5 / 1.05
	fm.addSymbol("NOFUND", 5, 50_000_000, 25, 3)
	delete(fm.fundamentals, "NOFUND")

	got := newTestScanner(fm).Scan(context.Background(),
		[]string{"GOOD", "LOWSHORT", "THIN", "NODAILY", "NOFUND", "MISSING"}, 10)

	bySymbol := make(map[string]models.Candidate)
	for _, c := range got {
		bySymbol[c.Symbol] = c
	}
	require.Len(t, bySymbol, 2)

	good := bySymbol["GOOD"]
	assert.Equal(t, int64(80_000), good.IntradayVolume)
	require.NotNil(t, good.RVOL)
	assert.InDelta(t, 3.0, *good.RVOL, 1e-9)
	require.NotNil(t, good.ATRPct)
	assert.InDelta(t, 10.0, *good.ATRPct, 1e-9)
	require.NotNil(t, good.GapPct)
	assert.InDelta(t, 2.0, *good.GapPct, 1e-9)
	assert.Equal(t, 93, good.Score)
	assert.Equal(t, models.TierA, good.Tier)

	// Daily metrics only feed the score: short 28 + gap 20 + momentum 10.
	noDaily, ok := bySymbol["NODAILY"]
	require.True(t, ok)
	assert.Nil(t, noDaily.RVOL)
	assert.Nil(t, noDaily.ATRPct)
	assert.Equal(t, 58, noDaily.Score)
	assert.Equal(t, models.TierB, noDaily.Tier)
}

func TestScan_RejectsBelowMinScore(t *testing.T) {
	fm := newFakeMarket()
	fm.addSymbol("GOOD", 5, 50_000_000, 25, 3)
	// Passes every filter. Short 20 + ATR 15, no gap, RVOL 1.
	fm.addSymbol("WEAK", 5, 50_000_000, 12, 1.0)
	fm.quotes["WEAK"].PrevClose = 5
	// Short 20 + RVOL 20 + momentum 10 lands exactly on the floor.
	fm.addSymbol("EDGE", 5, 50_000_000, 12, 2.0)
	fm.quotes["EDGE"].PrevClose = 5
	fm.quotes["EDGE"].Open = 5 / 1.05
	fm.daily["EDGE"].High = fm.daily["EDGE"].Close
	fm.daily["EDGE"].Low = fm.daily["EDGE"].Close

	got := newTestScanner(fm).Scan(context.Background(), []string{"WEAK", "EDGE", "GOOD"}, 10)

	bySymbol := make(map[string]models.Candidate)
	for _, c := range got {
		bySymbol[c.Symbol] = c
	}
	assert.Equal(t, int32(3), fm.fundamentalCalls.Load(), "all three reach stage 2")
	require.Len(t, bySymbol, 2)
	assert.NotContains(t, bySymbol, "WEAK")
	assert.Equal(t, 50, bySymbol["EDGE"].Score)
	assert.Equal(t, models.TierB, bySymbol["EDGE"].Tier)
	assert.Contains(t, bySymbol, "GOOD")
}

func TestScan_SortedAndLimited(t *testing.T) {
	fm := newFakeMarket()
	fm.addSymbol("B55", 5, 50_000_000, 12, 1.0) // 20+0+20+15
	fm.addSymbol("A93", 5, 50_000_000, 25, 3.0) // 28+30+20+15
	fm.addSymbol("A75", 5, 50_000_000, 12, 1.6) // 20+20+20+15
	fm.addSymbol("A85", 5, 50_000_000, 12, 3.0) // 20+30+20+15
	universe := []string{"B55", "A93", "A75", "A85"}

	all := newTestScanner(fm).Scan(context.Background(), universe, 10)
	require.Len(t, all, 4)
	var scores []int
	for _, c := range all {
		require.NoError(t, c.Validate())
		scores = append(scores, c.Score)
	}
	assert.Equal(t, []int{93, 85, 75, 55}, scores)
	assert.Equal(t, models.TierB, all[3].Tier)

	top := newTestScanner(fm).Scan(context.Background(), universe, 2)
	assert.LessOrEqual(t, len(top), 2)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}
}

func TestScan_EarlyStop(t *testing.T) {
	fm := newFakeMarket()
	universe := []string{"S1", "S2", "S3", "S4", "S5", "S6"}
	for _, sym := range universe {
		fm.addSymbol(sym, 5, 50_000_000, 25, 3)
	}

	cfg := DefaultConfig()
	cfg.Stage2Workers = 1
	s := New(fm, cfg)

	got := s.Scan(context.Background(), universe, 1)
	assert.Len(t, got, 1)
	assert.LessOrEqual(t, fm.fundamentalCalls.Load(), int32(2))
}

func TestScan_NonPositiveLimit(t *testing.T) {
	fm := newFakeMarket()
	fm.addSymbol("GOOD", 5, 50_000_000, 25, 3)

	got := newTestScanner(fm).Scan(context.Background(), []string{"GOOD"}, 0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
