package finnhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rewired-gh/gapwatch/internal/models"
)

// ErrMalformedMessage marks a stream payload that could not be decoded.
var ErrMalformedMessage = errors.New("malformed stream message")

// StreamProtocol encodes subscriptions and decodes trade messages of the
// Finnhub websocket feed.
type StreamProtocol struct{}

type streamMessage struct {
	Type string       `json:"type"`
	Data []tradeEntry `json:"data"`
}

type tradeEntry struct {
	Symbol    string   `json:"s"`
	Price     *float64 `json:"p"`
	Timestamp int64    `json:"t"` // unix millis
	Volume    float64  `json:"v"`
}

// StreamURL returns the websocket endpoint with the token attached.
func StreamURL(base, apiKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse stream URL: %w", err)
	}
	q := u.Query()
	q.Set("token", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubscribeMessage returns the subscription frame for symbol.
func (StreamProtocol) SubscribeMessage(symbol string) ([]byte, error) {
	return json.Marshal(map[string]string{"type": "subscribe", "symbol": symbol})
}

// DecodeTrades extracts trades from a stream frame. Non-trade frames (pings,
// errors) yield no trades and no error. Entries without a symbol or price are skipped.
func (StreamProtocol) DecodeTrades(msg []byte) ([]models.Trade, error) {
	var m streamMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Type != "trade" {
		return nil, nil
	}

	trades := make([]models.Trade, 0, len(m.Data))
	for _, e := range m.Data {
		if e.Symbol == "" || e.Price == nil {
			continue
		}
		trades = append(trades, models.Trade{
			Symbol:    e.Symbol,
			Price:     *e.Price,
			Volume:    e.Volume,
			Timestamp: time.UnixMilli(e.Timestamp).UTC(),
		})
	}
	return trades, nil
}
