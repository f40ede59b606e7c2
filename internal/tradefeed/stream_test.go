package tradefeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestSymbolSetAddRemoveList(t *testing.T) {
	set := NewSymbolSet("btcusdt")
	set.Add("ethusdt")
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, set.List())

	set.Remove("btcusdt")
	assert.Equal(t, []string{"ETHUSDT"}, set.List())
}

func TestSymbolSetStreamNames(t *testing.T) {
	set := NewSymbolSet("BTCUSDT")
	names := set.streamNames()
	require.Len(t, names, 1)
	assert.Equal(t, "btcusdt@trade", names[0])
}

func TestStreamHandleMessageDecodesTrade(t *testing.T) {
	var got model.Trade
	var gotSymbol string
	s := New(Config{BaseURL: "wss://example.invalid/stream"}, NewSymbolSet(), func(symbol string, tr model.Trade) {
		gotSymbol = symbol
		got = tr
	})

	msg := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"50000.50","q":"0.01","T":1000}}`)
	require.NoError(t, s.handleMessage(msg))

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, int64(1000), got.TimestampMs)
	assert.InDelta(t, 50000.50, got.Price, 0.0001)
	assert.InDelta(t, 0.01, got.Size, 0.0001)
}

func TestStreamHandleMessageDropsInvalidTrade(t *testing.T) {
	called := false
	s := New(Config{BaseURL: "wss://example.invalid/stream"}, NewSymbolSet(), func(symbol string, tr model.Trade) {
		called = true
	})

	msg := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"50000.50","q":"0","T":1000}}`)
	require.NoError(t, s.handleMessage(msg))
	assert.False(t, called, "zero-size trade should be dropped, not dispatched")
}

func TestStreamHandleMessageRejectsMalformedPayload(t *testing.T) {
	s := New(Config{BaseURL: "wss://example.invalid/stream"}, NewSymbolSet(), func(string, model.Trade) {})
	assert.Error(t, s.handleMessage([]byte(`not json`)))
}
