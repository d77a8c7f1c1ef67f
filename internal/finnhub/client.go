// Package finnhub is the market data gateway: quotes, profiles, fundamentals,
// candles, symbol listings and company news from the Finnhub REST API.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable is the uniform "absent" signal: not found, timeout,
	// rate limit, provider error or malformed response.
	ErrUnavailable = errors.New("market data unavailable")
	// ErrRateLimited is returned when a request is still throttled after one retry.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrUnavailable)
)

// Client provides access to the Finnhub REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// ClientConfig holds tuning for the HTTP client.
type ClientConfig struct {
	Timeout              time.Duration
	MaxRequestsPerMinute int
	Burst                int
	RateLimitRetryDelay  time.Duration
}

// NewClient creates a new Finnhub client. A non-positive MaxRequestsPerMinute
// disables client-side throttling.
func NewClient(baseURL, apiKey string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.RateLimitRetryDelay <= 0 {
		cfg.RateLimitRetryDelay = 800 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxRequestsPerMinute)), cfg.Burst)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    limiter,
		retryDelay: cfg.RateLimitRetryDelay,
	}
}

type quoteResponse struct {
	Current   *float64 `json:"c"`
	Open      *float64 `json:"o"`
	PrevClose *float64 `json:"pc"`
	High      float64  `json:"h"`
	Low       float64  `json:"l"`
}

// Quote returns the latest quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var resp quoteResponse
	if err := c.getJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, err
	}
	if resp.Current == nil || resp.Open == nil || resp.PrevClose == nil {
		return nil, fmt.Errorf("%w: quote %s: missing fields", ErrUnavailable, symbol)
	}
	// Unknown symbols come back as an all-zero quote.
	if *resp.Current == 0 && *resp.PrevClose == 0 {
		return nil, fmt.Errorf("%w: quote %s: no data", ErrUnavailable, symbol)
	}
	return &models.Quote{
		Current:   *resp.Current,
		Open:      *resp.Open,
		PrevClose: *resp.PrevClose,
		High:      resp.High,
		Low:       resp.Low,
	}, nil
}

type profileResponse struct {
	Name string `json:"name"`
	// Reported in millions of USD.
	MarketCapitalization *float64 `json:"marketCapitalization"`
}

// Profile returns the company profile for symbol with market cap in USD.
func (c *Client) Profile(ctx context.Context, symbol string) (*models.Profile, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, err
	}
	if resp.MarketCapitalization == nil {
		return nil, fmt.Errorf("%w: profile %s: no data", ErrUnavailable, symbol)
	}
	return &models.Profile{
		Name:      resp.Name,
		MarketCap: *resp.MarketCapitalization * 1_000_000,
	}, nil
}

type metricResponse struct {
	Metric map[string]json.RawMessage `json:"metric"`
}

// Fundamentals returns the numeric fundamental metrics for symbol.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	var resp metricResponse
	q := url.Values{"symbol": {symbol}, "metric": {"all"}}
	if err := c.getJSON(ctx, "/stock/metric", q, &resp); err != nil {
		return nil, err
	}

	metrics := make(map[string]float64, len(resp.Metric))
	for k, raw := range resp.Metric {
		if v, ok := parseNumber(raw); ok {
			metrics[k] = v
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: metrics %s: no data", ErrUnavailable, symbol)
	}
	return &models.Fundamentals{Metrics: metrics}, nil
}

// parseNumber accepts JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

type candleResponse struct {
	Status string    `json:"s"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
}

// Candles returns OHLCV bars for symbol in [from, to].
func (c *Client) Candles(ctx context.Context, symbol string, res models.Resolution, from, to time.Time) (*models.Candles, error) {
	q := url.Values{
		"symbol":     {symbol},
		"resolution": {string(res)},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}
	var resp candleResponse
	if err := c.getJSON(ctx, "/stock/candle", q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: candles %s/%s: status %q", ErrUnavailable, symbol, res, resp.Status)
	}

	candles := &models.Candles{
		Open:   resp.Open,
		High:   resp.High,
		Low:    resp.Low,
		Close:  resp.Close,
		Volume: resp.Volume,
	}
	candles.Time = make([]time.Time, len(resp.Time))
	for i, ts := range resp.Time {
		candles.Time[i] = time.Unix(ts, 0).UTC()
	}
	return candles, nil
}

type symbolResponse struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Symbols lists every instrument of exchange.
func (c *Client) Symbols(ctx context.Context, exchange string) ([]models.Symbol, error) {
	var resp []symbolResponse
	if err := c.getJSON(ctx, "/stock/symbol", url.Values{"exchange": {exchange}}, &resp); err != nil {
		return nil, err
	}
	symbols := make([]models.Symbol, 0, len(resp))
	for _, s := range resp {
		symbols = append(symbols, models.Symbol{
			Symbol:      s.Symbol,
			Description: s.Description,
			Type:        s.Type,
		})
	}
	return symbols, nil
}

type newsResponse struct {
	Headline string `json:"headline"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
}

// CompanyNews returns company headlines published between the from and to dates.
func (c *Client) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	q := url.Values{
		"symbol": {symbol},
		"from":   {from.Format("2006-01-02")},
		"to":     {to.Format("2006-01-02")},
	}
	var resp []newsResponse
	if err := c.getJSON(ctx, "/company-news", q, &resp); err != nil {
		return nil, err
	}
	items := make([]models.NewsItem, 0, len(resp))
	for _, n := range resp {
		items = append(items, models.NewsItem{
			Headline: n.Headline,
			Source:   n.Source,
			URL:      n.URL,
			Time:     time.Unix(n.Datetime, 0).UTC(),
		})
	}
	return items, nil
}

// getJSON performs a throttled GET and decodes the body into out.
// A 429 is retried once after retryDelay.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
		}
		req.Header.Set("Accept", "application/json")
		// Header auth keeps the key out of URLs that end up in error strings.
		req.Header.Set("X-Finnhub-Token", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt > 0 {
				return fmt.Errorf("%w: %s", ErrRateLimited, path)
			}
			logger.Debug("Rate limited on %s, retrying in %v", path, c.retryDelay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, ctx.Err())
			case <-time.After(c.retryDelay):
			}
			continue
		}

		err = decodeBody(resp, out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
		}
		return nil
	}
}

func decodeBody(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
