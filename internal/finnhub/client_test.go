package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/gapwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", ClientConfig{
		Timeout:             2 * time.Second,
		RateLimitRetryDelay: time.Millisecond,
	})
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "ABCD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.Header.Get("X-Finnhub-Token"))
		_, _ = w.Write([]byte(`{"c":2.1,"o":2.0,"pc":1.8,"h":2.2,"l":1.9}`))
	})

	q, err := c.Quote(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, 2.1, q.Current)
	assert.Equal(t, 2.0, q.Open)
	assert.Equal(t, 1.8, q.PrevClose)
}

func TestQuote_UnknownSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":0,"o":0,"pc":0,"h":0,"l":0,"d":null}`))
	})

	_, err := c.Quote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQuote_MissingFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":2.1}`))
	})

	_, err := c.Quote(context.Background(), "ABCD")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProfile_MarketCapInUSD(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"ABCD Corp","marketCapitalization":50}`))
	})

	p, err := c.Profile(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, 50_000_000.0, p.MarketCap)
	assert.Equal(t, "ABCD Corp", p.Name)
}

func TestProfile_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Profile(context.Background(), "ABCD")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFundamentals_NumericOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("metric"))
		_, _ = w.Write([]byte(`{"metric":{"shortPercentFloat":0.25,"beta":"1.5","note":"n/a","x":null}}`))
	})

	f, err := c.Fundamentals(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"shortPercentFloat": 0.25, "beta": 1.5}, f.Metrics)
}

func TestCandles(t *testing.T) {
	from := time.Unix(1_700_000_000, 0)
	to := from.Add(time.Hour)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("resolution"))
		assert.Equal(t, "1700000000", q.Get("from"))
		assert.Equal(t, "1700003600", q.Get("to"))
		_, _ = w.Write([]byte(`{"s":"ok","o":[1,2],"h":[2,3],"l":[0.5,1.5],"c":[1.5,2.5],"v":[100,200],"t":[1700000000,1700000300]}`))
	})

	candles, err := c.Candles(context.Background(), "ABCD", models.Resolution5Min, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, candles.Len())
	assert.Equal(t, []float64{100, 200}, candles.Volume)
	assert.Equal(t, int64(1700000300), candles.Time[1].Unix())
}

func TestCandles_NoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"no_data"}`))
	})

	_, err := c.Candles(context.Background(), "ABCD", models.ResolutionDaily, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRateLimit_RetriedOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"c":2.1,"o":2.0,"pc":1.8}`))
	})

	_, err := c.Quote(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimit_GivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Quote(context.Background(), "ABCD")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, errors.Is(err, ErrUnavailable), "rate limiting must count as unavailable")
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Profile(context.Background(), "ABCD")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSymbolsAndNews(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/symbol":
			assert.Equal(t, "US", r.URL.Query().Get("exchange"))
			_, _ = w.Write([]byte(`[{"symbol":"ABCD","description":"ABCD CORP","type":"Common Stock"}]`))
		case "/company-news":
			assert.Equal(t, "2026-10-16", r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(`[{"headline":"ABCD wins contract","source":"wire","datetime":1760600000}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	symbols, err := c.Symbols(context.Background(), "US")
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "ABCD CORP", symbols[0].Description)

	day := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	news, err := c.CompanyNews(context.Background(), "ABCD", day, day)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "ABCD wins contract", news[0].Headline)
}
