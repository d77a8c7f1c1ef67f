package models

import "time"

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Current   float64
	Open      float64
	PrevClose float64
	High      float64
	Low       float64
}

// Profile holds company profile data. MarketCap is in USD.
type Profile struct {
	Name      string
	MarketCap float64
}

// Fundamentals is the numeric subset of a symbol's fundamental metrics, keyed by
// the provider's field names.
type Fundamentals struct {
	Metrics map[string]float64
}

// Resolution is a candle bar size.
type Resolution string

const (
	Resolution1Min  Resolution = "1"
	Resolution5Min  Resolution = "5"
	ResolutionDaily Resolution = "D"
)

// Candles is a column-oriented OHLCV series ordered oldest first.
type Candles struct {
	Time   []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of complete bars (the shortest column wins).
func (c *Candles) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.Open)
	for _, col := range [][]float64{c.High, c.Low, c.Close, c.Volume} {
		if len(col) < n {
			n = len(col)
		}
	}
	return n
}

// Symbol is one instrument of an exchange listing.
type Symbol struct {
	Symbol      string
	Description string
	Type        string
}

// Trade is one inbound trade tick.
type Trade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// NewsItem is a single company headline.
type NewsItem struct {
	Headline string
	Source   string
	URL      string
	Time     time.Time
}
