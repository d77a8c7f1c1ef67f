package news

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/gapwatch/internal/models"
)

type countingSource struct {
	items []models.NewsItem
	err   error
	calls int
}

func (s *countingSource) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.NewsItem, error) {
	s.calls++
	return s.items, s.err
}

func TestRender(t *testing.T) {
	long := strings.Repeat("x", 200)
	items := []models.NewsItem{
		{Headline: "  ABCD wins <big> contract & more  "},
		{Headline: ""},
		{Headline: long},
		{Headline: "third"},
		{Headline: "fourth is dropped"},
	}

	got := Render(items)
	lines := strings.Split(got, "\n")

	assert.Equal(t, "📰 Today's news:", lines[0])
	assert.Len(t, lines, 4)
	assert.Equal(t, "• 🔹 ABCD wins &lt;big&gt; contract &amp; more", lines[1])
	assert.Equal(t, "• 🔹 "+strings.Repeat("x", 137)+"...", lines[2])
	assert.Equal(t, "• 🔹 third", lines[3])
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "📰 Today's news: none.", Render(nil))
}

func TestSummary_Cached(t *testing.T) {
	src := &countingSource{items: []models.NewsItem{{Headline: "ABCD news"}}}
	s := NewSummarizer(src, time.Minute)

	first := s.Summary(context.Background(), "ABCD")
	second := s.Summary(context.Background(), "ABCD")

	assert.Equal(t, first, second)
	assert.Contains(t, first, "ABCD news")
	assert.Equal(t, 1, src.calls)
}

func TestSummary_ErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("unavailable")}
	s := NewSummarizer(src, time.Minute)

	assert.Equal(t, "📰 Today's news: unavailable.", s.Summary(context.Background(), "ABCD"))
	s.Summary(context.Background(), "ABCD")
	assert.Equal(t, 2, src.calls)
}
