package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/gapwatch/internal/config"
	"github.com/rewired-gh/gapwatch/internal/models"
)

func TestWatchlistPreview(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N"}

	assert.Equal(t, "👀 Watchlist (14): A, B, C, D, E, F, G, H, I, J, K, L +2 more", watchlistPreview(tickers, 12))
	assert.Equal(t, "👀 Watchlist (2): A, B", watchlistPreview(tickers[:2], 12))
}

func TestActiveNotice(t *testing.T) {
	candidates := []models.Candidate{{Tier: models.TierA}, {Tier: models.TierB}, {Tier: models.TierA}}
	assert.Equal(t, "✅ Alerts active for 3 symbols (tier A: 2, tier B: 1)", activeNotice(candidates))
}

func TestCandidateLine(t *testing.T) {
	c := models.Candidate{
		Symbol:        "ABCD",
		Score:         85,
		Tier:          models.TierA,
		Price:         2.5,
		GapPct:        models.Float(12.345),
		ShortFloatPct: 31.2,
		MarketCap:     42_000_000,
	}
	assert.Equal(t, "ABCD   score=85 tier=A price=$2.50 gap=+12.35% short=31.2% rvol=n/a cap=$42.00M", candidateLine(&c))
}

func TestComponentConfigs(t *testing.T) {
	t.Setenv("GAPWATCH_FINNHUB_API_KEY", "secret")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Scanner.MaxPrice = 10
	cfg.Stream.Cooldown = 2 * time.Minute
	cfg.Poller.Interval = time.Minute

	assert.Equal(t, 10.0, scannerConfig(cfg).MaxPrice)
	assert.Equal(t, 35*24*time.Hour, scannerConfig(cfg).DailyLookback)
	assert.Equal(t, 2*time.Minute, streamConfig(cfg).Cooldown)
	assert.Equal(t, time.Minute, pollerConfig(cfg).Interval)
	assert.Equal(t, 20, pollerConfig(cfg).AvgVolumeBars)

	sc, err := streamerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.finnhub.io?token=secret", sc.URL)
	assert.Equal(t, 20*time.Second, sc.PingInterval)
}

func TestRequestBudgets(t *testing.T) {
	t.Setenv("GAPWATCH_FINNHUB_API_KEY", "secret")
	cfg, err := config.Load("")
	require.NoError(t, err)

	poll, news := realtimeBudgets(cfg)
	assert.Equal(t, 50, poll)
	assert.Equal(t, 10, news)

	cfg.Finnhub.MaxRequestsPerMinute = 0
	poll, news = realtimeBudgets(cfg)
	assert.Zero(t, poll, "unthrottled stays unthrottled")
	assert.Zero(t, news)
}

func TestMinScanTime(t *testing.T) {
	assert.Equal(t, 2*time.Hour, minScanTime(7200, 60))
	assert.Equal(t, 30*time.Second, minScanTime(30, 60))
	assert.Zero(t, minScanTime(7200, 0))
}

func TestPollerDemand(t *testing.T) {
	assert.Equal(t, 60, pollerDemand(30, 30*time.Second))
	assert.Equal(t, 10, pollerDemand(10, time.Minute))
	assert.Zero(t, pollerDemand(10, 0))
}
