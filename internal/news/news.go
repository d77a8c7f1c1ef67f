// Package news renders today's company headlines for alert messages.
package news

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
)

const (
	maxHeadlines   = 3
	maxHeadlineLen = 140
	ellipsis       = "..."
)

// Source lists company news published between from and to.
type Source interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error)
}

// Summarizer caches one rendered block per symbol.
type Summarizer struct {
	source Source
	cache  *cache.Cache
	now    func() time.Time
}

func NewSummarizer(source Source, ttl time.Duration) *Summarizer {
	return &Summarizer{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		now:    time.Now,
	}
}

// Summary returns the headline block for symbol. Fetch failures render a
// placeholder and are not cached.
func (s *Summarizer) Summary(ctx context.Context, symbol string) string {
	if v, ok := s.cache.Get(symbol); ok {
		return v.(string)
	}

	today := s.now().UTC()
	items, err := s.source.CompanyNews(ctx, symbol, today, today)
	if err != nil {
		logger.Warn("news %s: %v", symbol, err)
		return "📰 Today's news: unavailable."
	}

	block := Render(items)
	s.cache.SetDefault(symbol, block)
	return block
}

// Render formats up to three headlines, each cut to 140 characters.
func Render(items []models.NewsItem) string {
	var lines []string
	for _, item := range items {
		h := strings.TrimSpace(item.Headline)
		if h == "" {
			continue
		}
		lines = append(lines, "• 🔹 "+html.EscapeString(truncate(h)))
		if len(lines) == maxHeadlines {
			break
		}
	}
	if len(lines) == 0 {
		return "📰 Today's news: none."
	}
	return fmt.Sprintf("📰 Today's news:\n%s", strings.Join(lines, "\n"))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxHeadlineLen {
		return s
	}
	return string(r[:maxHeadlineLen-len(ellipsis)]) + ellipsis
}
