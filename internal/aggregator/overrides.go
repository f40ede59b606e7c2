package aggregator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marketdata/ingestpipe/internal/model"
)

// symbolOverridesFile is the on-disk shape of a static per-symbol
// time-frame override seed, e.g.:
//
//	BTCUSDT: ["1m", "5m", "1h"]
//	ETHUSDT: ["1m", "15m"]
type symbolOverridesFile map[string][]string

// LoadSymbolOverrides reads a YAML seed file mapping symbol to its list
// of time frames and merges each entry into agg via MergeTimeFrames. A
// missing file is not an error; symbols simply keep model.DefaultTimeFrames.
func LoadSymbolOverrides(agg *MultiTimeFrameAggregator, path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read time frame overrides: %w", err)
	}

	var parsed symbolOverridesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse time frame overrides: %w", err)
	}

	mapping := make(map[string][]model.TimeFrame, len(parsed))
	for symbol, rawFrames := range parsed {
		frames := make([]model.TimeFrame, 0, len(rawFrames))
		for _, rf := range rawFrames {
			tf := model.TimeFrame(rf)
			if !tf.Valid() {
				return fmt.Errorf("time frame override for %s: unknown time frame %q", symbol, rf)
			}
			frames = append(frames, tf)
		}
		mapping[symbol] = frames
	}
	agg.MergeTimeFrames(mapping)
	return nil
}
