// Package tradefeed maintains a reconnecting public-trade WebSocket
// subscription and decodes incoming prints into model.Trade values for
// the aggregator.
package tradefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// Handler receives one decoded trade for a symbol.
type Handler func(symbol string, t model.Trade)

// StaleTimeout is how long Stream waits without a message before it
// assumes the connection is dead and forces a reconnect.
const StaleTimeout = 90 * time.Second

// Config holds the connection parameters for a live trade stream.
type Config struct {
	// BaseURL is the combined-stream endpoint, e.g.
	// "wss://stream.binance.com:9443/stream".
	BaseURL string
}

// Stream consumes public trade prints for a changing set of symbols,
// automatically reconnecting (and resubscribing) on any disconnect.
type Stream struct {
	cfg     Config
	symbols *SymbolSet
	handler Handler
}

// New creates a Stream that invokes handler for every decoded trade.
func New(cfg Config, symbols *SymbolSet, handler Handler) *Stream {
	return &Stream{cfg: cfg, symbols: symbols, handler: handler}
}

// Run blocks, maintaining the connection until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	log := logging.Default().WithComponent("tradefeed")

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx, log)
		if err != nil {
			// dial already retried internally; ctx must be done.
			return
		}

		s.readLoop(ctx, conn, log)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn("trade stream disconnected, reconnecting")
	}
}

func (s *Stream) dial(ctx context.Context, log *logging.Logger) (*websocket.Conn, error) {
	streams := s.symbols.streamNames()
	if len(streams) == 0 {
		streams = []string{"btcusdt@trade"}
	}
	url := fmt.Sprintf("%s?streams=%s", s.cfg.BaseURL, strings.Join(streams, "/"))

	var conn *websocket.Conn
	operation := func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.WithError(err).Warn("trade stream dial failed, retrying")
			return err
		}
		conn = c
		return nil
	}

	// MaxElapsedTime 0 keeps retrying until ctx is cancelled.
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	bo := backoff.WithContext(eb, ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	log.WithField("streams", len(streams)).Info("connected to trade stream")
	return conn, nil
}

// readLoop reads until the connection errors or ctx is cancelled. A read
// deadline bounds how long a cancelled ctx takes to unblock a pending read.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, log *logging.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(StaleTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.WithError(err).Warn("trade stream read error")
			}
			return
		}

		if err := s.handleMessage(message); err != nil {
			log.WithError(err).Warn("failed to decode trade message")
		}
	}
}

// envelope matches Binance's combined-stream wrapper:
// {"stream": "btcusdt@trade", "data": {...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type rawTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (s *Stream) handleMessage(message []byte) error {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var raw rawTrade
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return fmt.Errorf("unmarshal trade payload: %w", err)
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	size, err := strconv.ParseFloat(raw.Quantity, 64)
	if err != nil {
		return fmt.Errorf("parse quantity: %w", err)
	}

	trade := model.Trade{
		TimestampMs: raw.TradeTime,
		Price:       price,
		Size:        size,
	}
	if !trade.Valid() {
		return nil
	}

	s.handler(strings.ToUpper(raw.Symbol), trade)
	return nil
}
