// Package watchlist supplies priority tickers that are scanned before the rest of the universe.
package watchlist

import (
	"context"
	"strings"
)

// Supplier returns tickers to scan first.
type Supplier interface {
	FetchPriorityTickers(ctx context.Context) ([]string, error)
}

// Static is a fixed, configured list of tickers.
type Static struct {
	tickers []string
}

// NewStatic normalizes tickers: trimmed, upper-cased, deduplicated, order kept.
func NewStatic(tickers []string) *Static {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return &Static{tickers: out}
}

func (s *Static) FetchPriorityTickers(context.Context) ([]string, error) {
	return append([]string(nil), s.tickers...), nil
}
