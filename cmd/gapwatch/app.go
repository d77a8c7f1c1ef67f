package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/gapwatch/internal/alert"
	"github.com/rewired-gh/gapwatch/internal/config"
	"github.com/rewired-gh/gapwatch/internal/finnhub"
	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
	"github.com/rewired-gh/gapwatch/internal/news"
	"github.com/rewired-gh/gapwatch/internal/poller"
	"github.com/rewired-gh/gapwatch/internal/scanner"
	"github.com/rewired-gh/gapwatch/internal/session"
	"github.com/rewired-gh/gapwatch/internal/storage"
	"github.com/rewired-gh/gapwatch/internal/stream"
	"github.com/rewired-gh/gapwatch/internal/supervise"
	"github.com/rewired-gh/gapwatch/internal/telegram"
	"github.com/rewired-gh/gapwatch/internal/watchlist"
)

const (
	watchlistPreviewLen = 12
	topCandidatesLogged = 10
)

// notifyFunc sends a service notice to the user channel.
type notifyFunc func(ctx context.Context, text string)

func openStorage(cfg *config.Config) *storage.Storage {
	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	if err := store.RotateAlerts(); err != nil {
		logger.Warn("Failed to rotate alerts: %v", err)
	}
	return store
}

// newGateway returns a client with its own limiter allowing perMinute requests.
func newGateway(cfg *config.Config, perMinute int) *finnhub.Client {
	return finnhub.NewClient(cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, finnhub.ClientConfig{
		Timeout:              cfg.Finnhub.Timeout,
		MaxRequestsPerMinute: perMinute,
		Burst:                cfg.Finnhub.Burst,
		RateLimitRetryDelay:  cfg.Finnhub.RateLimitRetryDelay,
	})
}

// realtimeBudgets splits the per-key request budget between the poller and
// headline lookups. The scan never overlaps them and gets the whole budget.
func realtimeBudgets(cfg *config.Config) (pollPerMinute, newsPerMinute int) {
	total := cfg.Finnhub.MaxRequestsPerMinute
	if total <= 0 {
		return 0, 0
	}
	return total - cfg.Finnhub.NewsRequestsPerMinute, cfg.Finnhub.NewsRequestsPerMinute
}

// minScanTime is the lower bound of a scan at perMinute requests: one profile
// request per symbol before anything else is fetched.
func minScanTime(symbols, perMinute int) time.Duration {
	if perMinute <= 0 {
		return 0
	}
	return time.Duration(symbols) * time.Minute / time.Duration(perMinute)
}

// pollerDemand is the request rate the poller needs for symbols at interval.
func pollerDemand(symbols int, interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	return int(float64(symbols) * float64(time.Minute) / float64(interval))
}

func scannerConfig(cfg *config.Config) scanner.Config {
	sc := scanner.DefaultConfig()
	sc.MinPrice = cfg.Scanner.MinPrice
	sc.MaxPrice = cfg.Scanner.MaxPrice
	sc.MaxMarketCap = cfg.Scanner.MaxMarketCap
	sc.MinShortFloatPct = cfg.Scanner.MinShortFloatPct
	sc.MinIntradayVolume = cfg.Scanner.MinIntradayVolume
	sc.Stage1Workers = cfg.Scanner.Stage1Workers
	sc.Stage2Workers = cfg.Scanner.Stage2Workers
	return sc
}

func streamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		PriceWindow:       cfg.Stream.PriceWindow,
		Cooldown:          cfg.Stream.Cooldown,
		CooldownExpiry:    cfg.Stream.CooldownExpiry,
		RVOLTrigger:       cfg.Stream.RVOLTrigger,
		RVOLChangeTrigger: cfg.Stream.RVOLChangeTrigger,
		HODChangeTrigger:  cfg.Stream.HODChangeTrigger,
	}
}

func streamerConfig(cfg *config.Config) (stream.StreamerConfig, error) {
	url, err := finnhub.StreamURL(cfg.Finnhub.StreamURL, cfg.Finnhub.APIKey)
	if err != nil {
		return stream.StreamerConfig{}, err
	}
	sc := stream.DefaultStreamerConfig(url)
	sc.PingInterval = cfg.Stream.PingInterval
	sc.SubscribeDelay = cfg.Stream.SubscribeDelay
	sc.MinBackoff = cfg.Stream.MinBackoff
	sc.MaxBackoff = cfg.Stream.MaxBackoff
	return sc, nil
}

func pollerConfig(cfg *config.Config) poller.Config {
	pc := poller.DefaultConfig()
	pc.Interval = cfg.Poller.Interval
	pc.SpikeMultiple = cfg.Poller.SpikeMultiple
	pc.HODBuffer = cfg.Poller.HODBuffer
	return pc
}

// scan builds the universe, runs both scan stages and logs the best candidates.
func scan(ctx context.Context, cfg *config.Config, gw *finnhub.Client, supplier watchlist.Supplier, notify notifyFunc) []models.Candidate {
	priority, err := supplier.FetchPriorityTickers(ctx)
	if err != nil {
		logger.Warn("Failed to fetch watchlist: %v", err)
	}
	if len(priority) > 0 {
		notify(ctx, watchlistPreview(priority, watchlistPreviewLen))
	}

	var universe []string
	symbols, err := gw.Symbols(ctx, cfg.Finnhub.Exchange)
	if err != nil {
		logger.Error("Failed to list %s symbols: %v; scanning watchlist only", cfg.Finnhub.Exchange, err)
		universe = priority
	} else {
		universe = scanner.BuildUniverse(symbols, priority)
	}

	now := time.Now()
	notify(ctx, fmt.Sprintf("🔎 Scanning %d symbols (session: %s)...", len(universe), session.LabelAt(now)))
	logger.Info("Scanning %d symbols, limit %d", len(universe), cfg.Scanner.Limit)
	if eta := minScanTime(len(universe), cfg.Finnhub.MaxRequestsPerMinute); eta > 10*time.Minute {
		logger.Warn("At %d requests/min the scan needs at least %v; narrow the universe with a watchlist or raise finnhub.max_requests_per_minute",
			cfg.Finnhub.MaxRequestsPerMinute, eta.Round(time.Minute))
	}

	started := time.Now()
	candidates := scanner.New(gw, scannerConfig(cfg)).Scan(ctx, universe, cfg.Scanner.Limit)
	logger.Info("Scan completed in %v: %d candidates", time.Since(started).Round(time.Millisecond), len(candidates))

	for i, c := range candidates {
		if i == topCandidatesLogged {
			break
		}
		logger.Info("#%d %s", i+1, candidateLine(&c))
	}
	return candidates
}

func runScanOnly(ctx context.Context, cfg *config.Config) {
	store := openStorage(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	gw := newGateway(cfg, cfg.Finnhub.MaxRequestsPerMinute)
	notify := func(_ context.Context, text string) { logger.Info("%s", text) }
	candidates := scan(ctx, cfg, gw, watchlist.NewStatic(cfg.Watchlist.Tickers), notify)

	if err := store.SaveCandidates(candidates); err != nil {
		logger.Error("Failed to persist scan: %v", err)
	}
	for i, c := range candidates {
		fmt.Printf("%2d. %s\n", i+1, candidateLine(&c))
	}
}

func runRealtime(ctx context.Context, cfg *config.Config) {
	store := openStorage(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	gw := newGateway(cfg, cfg.Finnhub.MaxRequestsPerMinute)

	var tg *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		tg, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, store)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
		tg.ListenForCommands(ctx)
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	notify := func(ctx context.Context, text string) {
		logger.Info("%s", text)
		if tg == nil {
			return
		}
		if err := tg.SendText(ctx, text); err != nil {
			logger.Warn("Failed to send notice to Telegram: %v", err)
		}
	}

	var candidates []models.Candidate
	if reuseScan {
		loaded, err := store.LoadCandidates()
		if err != nil {
			logger.Fatal("Failed to load persisted scan: %v", err)
		}
		candidates = loaded
		logger.Info("Loaded %d candidates from the last scan", len(candidates))
	} else {
		candidates = scan(ctx, cfg, gw, watchlist.NewStatic(cfg.Watchlist.Tickers), notify)
		if err := store.SaveCandidates(candidates); err != nil {
			logger.Error("Failed to persist scan: %v", err)
		}
	}

	if ctx.Err() != nil {
		return
	}
	if len(candidates) == 0 {
		notify(ctx, "🤷 No candidates matched the filters. Stopping.")
		return
	}

	var notifier alert.Notifier = alert.LogNotifier{}
	var health poller.HealthReporter
	if tg != nil {
		notifier = tg
		health = tg
	}
	pollBudget, newsBudget := realtimeBudgets(cfg)
	var headlines alert.NewsSource
	if cfg.News.Enabled {
		headlines = news.NewSummarizer(newGateway(cfg, newsBudget), cfg.News.CacheTTL)
	}
	dispatcher := alert.NewDispatcher(notifier, headlines, store, 0)

	processor := stream.NewProcessor(candidates, dispatcher, streamConfig(cfg))
	sc, err := streamerConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid stream URL: %v", err)
	}
	streamer := stream.NewStreamer(sc, finnhub.StreamProtocol{}, processor)

	tasks := map[string]supervise.Task{
		"dispatcher": dispatcher.Run,
		"stream":     streamer.Run,
	}
	if cfg.Poller.Enabled {
		if demand := pollerDemand(len(candidates), cfg.Poller.Interval); pollBudget > 0 && demand > pollBudget {
			logger.Warn("Poller needs %d requests/min for %d symbols but has %d; cycles will run longer than %v",
				demand, len(candidates), pollBudget, cfg.Poller.Interval)
		}
		pollGW := newGateway(cfg, pollBudget)
		tasks["poller"] = poller.New(pollGW, candidates, dispatcher, health, pollerConfig(cfg)).Run
	}

	notify(ctx, activeNotice(candidates))

	policy := supervise.Policy{MinBackoff: cfg.Stream.MinBackoff, MaxBackoff: cfg.Stream.MaxBackoff}
	var wg sync.WaitGroup
	for name, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			supervise.Run(ctx, name, policy, task)
		}()
	}
	wg.Wait()
	logger.Info("Service stopped")
}

func watchlistPreview(tickers []string, n int) string {
	shown := tickers[:min(n, len(tickers))]
	text := fmt.Sprintf("👀 Watchlist (%d): %s", len(tickers), strings.Join(shown, ", "))
	if extra := len(tickers) - len(shown); extra > 0 {
		text += fmt.Sprintf(" +%d more", extra)
	}
	return text
}

func activeNotice(candidates []models.Candidate) string {
	tierA := 0
	for i := range candidates {
		if candidates[i].Tier == models.TierA {
			tierA++
		}
	}
	return fmt.Sprintf("✅ Alerts active for %d symbols (tier A: %d, tier B: %d)",
		len(candidates), tierA, len(candidates)-tierA)
}

func candidateLine(c *models.Candidate) string {
	rvol := "n/a"
	if c.RVOL != nil {
		rvol = fmt.Sprintf("%.2f", *c.RVOL)
	}
	gap := "n/a"
	if c.GapPct != nil {
		gap = fmt.Sprintf("%+.2f%%", *c.GapPct)
	}
	return fmt.Sprintf("%-6s score=%d tier=%s price=$%.2f gap=%s short=%.1f%% rvol=%s cap=%s",
		c.Symbol, c.Score, c.Tier, c.Price, gap, c.ShortFloatPct, rvol, alert.FormatMoney(c.MarketCap))
}
