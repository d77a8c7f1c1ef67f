package alert

import (
	"fmt"
	"html"
	"strings"

	"github.com/rewired-gh/gapwatch/internal/session"
)

const (
	separator = "━━━━━━━━━━━━━━━━"
	chartURL  = "https://www.tradingview.com/symbols/%s/"
	// Short-sale restriction applies once price is 10% below the previous close.
	ssrRatio = 0.9
)

// Format renders an alert as a Telegram HTML message. news is an already
// rendered block and may be empty.
func Format(a Alert, news string) string {
	symbol := html.EscapeString(a.Symbol)
	label := strings.ToUpper(string(session.LabelAt(a.At)))

	header := "📡 Heads-up"
	if a.Kind == KindFull {
		header = "📡 Stock alert"
	}

	message := fmt.Sprintf("<b>%s</b>\n%s\n📈 <b>%s</b>\n", header, separator, symbol)

	if a.Kind.FromStream() {
		message += formatStreamBody(a, label)
	} else {
		message += strings.Join(pollerBody(a, label), "\n") + "\n"
	}

	if news != "" {
		message += "\n" + news + "\n"
	}

	message += fmt.Sprintf("🔗 <a href='"+chartURL+"'>Live chart</a>  •  ⏱️ %s ET",
		symbol, a.At.In(session.Location()).Format("15:04:05"))
	return message
}

func formatStreamBody(a Alert, label string) string {
	arrow, sign := "▲", "+"
	if a.ChangePct < 0 {
		arrow, sign = "▼", ""
	}

	ssr := ""
	if c := a.Candidate; c != nil && c.PrevClose > 0 && a.Price <= ssrRatio*c.PrevClose {
		ssr = " • 🛡️ SSR ON"
	}

	body := fmt.Sprintf("%s <b>%s%.2f%%</b>\n", arrow, sign, a.ChangePct)
	body += fmt.Sprintf("💰 <b>$%.2f</b>  |  Open: $%.2f  |  MA(30m): $%.2f  •  %s%s\n",
		a.Price, a.Open, a.MovingAvg, label, ssr)

	if a.Note != "" {
		prefix := "🧠 "
		if a.Kind != KindFull {
			prefix = "⚠️ Heads-up: "
		}
		body += "\n📝 " + prefix + html.EscapeString(a.Note) + "\n"
	}

	if adv := advancedLine(a); adv != "" {
		body += "\n" + adv + "\n"
	}
	return body
}

func pollerBody(a Alert, label string) []string {
	switch a.Kind {
	case KindVWAPReclaim:
		return []string{
			fmt.Sprintf("🟩 <b>VWAP Reclaim</b> (%s)", label),
			fmt.Sprintf("💰 Price: <b>$%.2f</b>  |  VWAP: $%.2f", a.Price, a.VWAP),
			fmt.Sprintf("📦 1m Vol: %s (avg: %s)", FormatCount(a.Volume), FormatCount(a.AvgVolume)),
		}
	case KindVolumeSpike:
		ratio := 0.0
		if a.AvgVolume > 0 {
			ratio = a.Volume / a.AvgVolume
		}
		change := "n/a"
		if a.Change5mPct != nil {
			change = fmt.Sprintf("%.2f%%", *a.Change5mPct)
		}
		return []string{
			fmt.Sprintf("📈 <b>Volume Spike</b> ×%.2f (%s)", ratio, label),
			fmt.Sprintf("💰 Price: <b>$%.2f</b>  |  Δ5m: %s", a.Price, change),
		}
	case KindHODBreakout:
		return []string{
			fmt.Sprintf("🚀 <b>HOD Breakout</b> (%s)", label),
			fmt.Sprintf("💰 Price: <b>$%.2f</b>  |  HOD: $%.2f", a.Price, a.HOD),
		}
	default:
		return []string{fmt.Sprintf("💰 Price: <b>$%.2f</b> (%s)", a.Price, label)}
	}
}

// advancedLine lists whichever candidate metrics are known.
func advancedLine(a Alert) string {
	c := a.Candidate
	if c == nil {
		return ""
	}

	var parts []string
	if c.Score > 0 {
		parts = append(parts, fmt.Sprintf("🧮 Score: <b>%d/100</b>", c.Score))
	}
	if c.ShortFloatPct > 0 {
		parts = append(parts, fmt.Sprintf("🧷 Short Float: %.1f%%", c.ShortFloatPct))
	}
	if c.RVOL != nil {
		parts = append(parts, fmt.Sprintf("📦 RVOL: %.2fx", *c.RVOL))
	}
	if c.AvgDollarVol != nil {
		parts = append(parts, "💵 Avg$Vol(10d): "+FormatMoney(*c.AvgDollarVol))
	}
	if c.MarketCap > 0 {
		parts = append(parts, "🏢 MCap: "+FormatMoney(c.MarketCap))
	}
	if c.GapPct != nil {
		parts = append(parts, fmt.Sprintf("🪜 Gap: %.2f%%", *c.GapPct))
	}
	return strings.Join(parts, " | ")
}

// FormatMoney renders a dollar amount compactly: $3.40B, $1.20M, $12.50K or $950.
func FormatMoney(x float64) string {
	return "$" + FormatCount(x)
}

// FormatCount renders a quantity with a B/M/K suffix and two decimals.
func FormatCount(x float64) string {
	switch {
	case x >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", x/1_000_000_000)
	case x >= 1_000_000:
		return fmt.Sprintf("%.2fM", x/1_000_000)
	case x >= 1_000:
		return fmt.Sprintf("%.2fK", x/1_000)
	default:
		return fmt.Sprintf("%.0f", x)
	}
}
