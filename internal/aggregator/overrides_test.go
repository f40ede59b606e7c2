package aggregator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdata/ingestpipe/internal/model"
)

func TestLoadSymbolOverridesAppliesYAMLSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeframes.yaml")
	contents := "BTCUSDT:\n  - 1m\n  - 1h\nETHUSDT:\n  - 5m\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	agg := New(nil)
	require.NoError(t, LoadSymbolOverrides(agg, path))

	agg.ProcessTrade("BTCUSDT", "binance", model.Trade{TimestampMs: 0, Price: 10, Size: 1})
	assert.NotNil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame1m))
	assert.NotNil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame1h))
	assert.NotNil(t, agg.CurrentCandle("BTCUSDT", "binance", model.TimeFrame5m),
		"seed entries are merged into the default time frames, not substituted for them")
}

func TestLoadSymbolOverridesMissingFileIsNotAnError(t *testing.T) {
	agg := New(nil)
	err := LoadSymbolOverrides(agg, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
}

func TestLoadSymbolOverridesRejectsUnknownTimeFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeframes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("BTCUSDT:\n  - 7m\n"), 0o644))

	agg := New(nil)
	err := LoadSymbolOverrides(agg, path)
	assert.Error(t, err)
}
