package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
)

const writeWait = 10 * time.Second

// Protocol encodes subscriptions and decodes inbound frames for a trade feed.
type Protocol interface {
	SubscribeMessage(symbol string) ([]byte, error)
	DecodeTrades(msg []byte) ([]models.Trade, error)
}

type StreamerConfig struct {
	URL              string
	PingInterval     time.Duration
	SubscribeDelay   time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
}

func DefaultStreamerConfig(url string) StreamerConfig {
	return StreamerConfig{
		URL:              url,
		PingInterval:     20 * time.Second,
		SubscribeDelay:   50 * time.Millisecond,
		MinBackoff:       time.Second,
		MaxBackoff:       120 * time.Second,
		HandshakeTimeout: 15 * time.Second,
	}
}

// Streamer keeps one websocket connection open, subscribes every candidate
// symbol and feeds decoded trades to the processor. It reconnects forever.
type Streamer struct {
	config    StreamerConfig
	protocol  Protocol
	processor *Processor
	backoff   *Backoff
	dialer    *websocket.Dialer
	now       func() time.Time
}

func NewStreamer(config StreamerConfig, protocol Protocol, processor *Processor) *Streamer {
	return &Streamer{
		config:    config,
		protocol:  protocol,
		processor: processor,
		backoff:   NewBackoff(config.MinBackoff, config.MaxBackoff),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		now: time.Now,
	}
}

// Run connects and reconnects until ctx is cancelled. Disconnects are never fatal.
func (s *Streamer) Run(ctx context.Context) error {
	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := s.backoff.Next()
		logger.Warn("Trade stream disconnected: %v; reconnecting in %v", err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// connect serves one connection lifetime and returns why it ended.
func (s *Streamer) connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.backoff.Reset()
	logger.Info("Trade stream connected, subscribing %d symbols", len(s.processor.Symbols()))

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	if err := s.subscribe(connCtx, conn); err != nil {
		return err
	}

	readTimeout := 3 * s.config.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go s.keepAlive(connCtx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		trades, err := s.protocol.DecodeTrades(msg)
		if err != nil {
			logger.Warn("Dropping stream message: %v", err)
			continue
		}
		if len(trades) > 0 {
			s.processor.HandleBatch(ctx, s.now(), trades)
		}
	}
}

func (s *Streamer) subscribe(ctx context.Context, conn *websocket.Conn) error {
	for _, sym := range s.processor.Symbols() {
		msg, err := s.protocol.SubscribeMessage(sym)
		if err != nil {
			logger.Error("Failed to encode subscription for %s: %v", sym, err)
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}

		select {
		case <-ctx.Done():
			return errors.New("cancelled during subscribe")
		case <-time.After(s.config.SubscribeDelay):
		}
	}
	return nil
}

// keepAlive pings at a fixed interval shorter than the server's idle timeout.
func (s *Streamer) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}
