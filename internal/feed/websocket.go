package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	reconnectDelay = 5 * time.Second
)

// WSFeed streams aggregate trades for one symbol over a websocket and
// keeps the connection alive with a ping/pong heartbeat, reconnecting
// after any read failure.
type WSFeed struct {
	baseURL string
	symbol  string
	logger  *zap.SugaredLogger
}

// NewWSFeed creates a websocket feed. baseURL is the stream endpoint,
// e.g. "wss://stream.binance.com:9443".
func NewWSFeed(baseURL, symbol string, logger *zap.SugaredLogger) *WSFeed {
	return &WSFeed{baseURL: baseURL, symbol: symbol, logger: logger}
}

// Run connects and pumps ticks into out until ctx is cancelled. The
// connect/read/reconnect loop is the daemon; one broken connection never
// ends the feed.
func (f *WSFeed) Run(ctx context.Context, out chan<- models.PriceTick) {
	url := fmt.Sprintf("%s/ws/%s@aggTrade", f.baseURL, strings.ToLower(f.symbol))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			f.logger.Warnw("websocket dial failed, retrying", "symbol", f.symbol, "err", err)
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		f.logger.Infow("websocket connected", "symbol", f.symbol)
		if err := f.pump(ctx, conn, out); err != nil {
			f.logger.Warnw("websocket read failed, reconnecting", "symbol", f.symbol, "err", err)
		}
		conn.Close()

		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// pump reads trade messages from one established connection and blocks
// until the connection breaks or the context is cancelled.
func (f *WSFeed) pump(ctx context.Context, conn *websocket.Conn, out chan<- models.PriceTick) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ctx.Done():
				// Break the blocking read below.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var trade struct {
			Price     json.Number `json:"p"`
			TradeTime int64       `json:"T"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			f.logger.Warnw("bad trade message", "symbol", f.symbol, "err", err)
			continue
		}
		price, err := trade.Price.Float64()
		if err != nil || price <= 0 {
			continue
		}

		tick := models.PriceTick{
			Symbol:    f.symbol,
			Price:     price,
			Timestamp: time.UnixMilli(trade.TradeTime),
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// sleepCtx waits for d and reports false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
