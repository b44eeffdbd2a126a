// Package feed consumes the live balance snapshot stream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"balance-telemetry/internal/model"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 15 * time.Second
	DefaultPongTimeout    = 45 * time.Second

	// MessageBalanceSnapshot is the only message type the dashboard consumes.
	MessageBalanceSnapshot = "balance_snapshot"
)

var (
	// ErrNoURL is returned when the feed endpoint is not configured.
	ErrNoURL = errors.New("feed: url not configured")
)

// Handler receives decoded snapshots. It must not block.
type Handler func(point model.HistoryPoint)

// Options configure the feed client.
type Options struct {
	URL            string
	Headers        http.Header
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// Envelope is the wire frame pushed by the feed.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type snapshotPayload struct {
	Timestamp    json.RawMessage `json:"timestamp"`
	TotalUSD     float64         `json:"total_usd"`
	TotalUSDUSDT float64         `json:"total_usd_usdt"`
	TotalRLB     float64         `json:"total_rlb"`
	RLBPriceUSD  *float64        `json:"rlb_price_usd"`
}

// Client maintains a persistent websocket connection and reconnects with a fixed delay.
type Client struct {
	opts   Options
	logger zerolog.Logger
	dialer websocket.Dialer

	connected atomic.Bool
	received  atomic.Int64
	malformed atomic.Int64
}

// New constructs a feed client.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = DefaultPongTimeout
	}
	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "live_feed").Logger(),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Received counts decoded snapshots since start.
func (c *Client) Received() int64 {
	return c.received.Load()
}

// Malformed counts frames that failed to decode.
func (c *Client) Malformed() int64 {
	return c.malformed.Load()
}

// Run connects and delivers snapshots to handler until ctx is cancelled.
// Disconnects are logged and retried; they are never surfaced to the handler.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if c.opts.URL == "" {
		return ErrNoURL
	}

	for {
		err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Dur("retry_in", c.opts.ReconnectDelay).Msg("feed disconnected")

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) session(ctx context.Context, handler Handler) error {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Headers)
	if err != nil {
		return model.Transient("feed dial", err)
	}

	c.connected.Store(true)
	c.logger.Info().Str("url", c.opts.URL).Msg("feed connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		c.connected.Store(false)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	go c.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return model.Transient("feed read", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		point, ok, err := Decode(data)
		if err != nil {
			c.malformed.Add(1)
			c.logger.Debug().Err(err).Msg("dropping malformed feed message")
			continue
		}
		if !ok {
			continue
		}
		c.received.Add(1)
		handler(point)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.logger.Debug().Err(err).Msg("feed ping failed")
				return
			}
		}
	}
}

// Decode parses a wire frame. It reports false for frames of other types.
// Timestamps may be unix milliseconds or RFC3339 strings.
func Decode(data []byte) (model.HistoryPoint, bool, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.HistoryPoint{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != MessageBalanceSnapshot {
		return model.HistoryPoint{}, false, nil
	}

	var raw snapshotPayload
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return model.HistoryPoint{}, false, fmt.Errorf("decode snapshot: %w", err)
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return model.HistoryPoint{}, false, err
	}

	return model.HistoryPoint{
		Timestamp:    ts,
		TotalUSD:     raw.TotalUSD,
		TotalUSDUSDT: raw.TotalUSDUSDT,
		TotalRLB:     raw.TotalRLB,
		RLBPriceUSD:  raw.RLBPriceUSD,
	}, true, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, errors.New("snapshot missing timestamp")
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("snapshot timestamp: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot timestamp: %w", err)
	}
	return ts.UTC(), nil
}
