// Package exchange fetches historical kline data from a Binance-compatible
// REST API for the archive pipeline's backfill and catch-up paths.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marketdata/ingestpipe/internal/archiveerr"
	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
	"github.com/marketdata/ingestpipe/internal/ratelimit"
)

// BarFetcher retrieves historical bars for one symbol/time-frame window.
// The exchange.Client and the mock test double both implement it, so the
// archive fetcher never depends on a concrete transport.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, tf model.TimeFrame, startMs, endMs int64, limit int) ([]model.Bar, error)
}

// Client is a BarFetcher backed by a real exchange REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient builds a Client against baseURL, admission-controlled by
// limiter.
func NewClient(baseURL string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
	}
}

// FetchBars retrieves up to limit bars for symbol/tf with open times in
// [startMs, endMs). Every failed request is retried with exponential
// backoff, up to 5 retries; once those are used up the last error is
// returned wrapped as a data error. A rate-limiter admission failure is
// not retried, and a cancelled ctx's error is returned without wrapping.
func (c *Client) FetchBars(ctx context.Context, symbol string, tf model.TimeFrame, startMs, endMs int64, limit int) ([]model.Bar, error) {
	var bars []model.Bar

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)

	op := func() error {
		weight := ratelimit.Weight(limit)
		if err := c.limiter.Acquire(ctx, weight); err != nil {
			return backoff.Permanent(archiveerr.Networkf("rate_limit_acquire", err))
		}

		fetched, err := c.fetchOnce(ctx, symbol, tf, startMs, endMs, limit)
		if err != nil {
			return err
		}
		bars = fetched
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, archiveerr.Dataf("fetch_bars", err)
	}
	return bars, nil
}

func (c *Client) fetchOnce(ctx context.Context, symbol string, tf model.TimeFrame, startMs, endMs int64, limit int) ([]model.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("startTime", strconv.FormatInt(startMs, 10))
	params.Set("endTime", strconv.FormatInt(endMs, 10))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	log := logging.ExchangeAPIContext("binance", "/api/v3/klines", map[string]interface{}{"symbol": symbol, "interval": string(tf)})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, archiveerr.Dataf("build_request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("kline fetch network error")
		return nil, archiveerr.Networkf("http_get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, archiveerr.Networkf("read_body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, archiveerr.Timeoutf("http_status", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 500 {
		return nil, archiveerr.Networkf("http_status", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, archiveerr.Dataf("http_status", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, archiveerr.Dataf("unmarshal_klines", err)
	}

	bars := make([]model.Bar, 0, len(raw))
	for _, row := range raw {
		b, err := parseBar(symbol, tf, row)
		if err != nil {
			return nil, archiveerr.Dataf("parse_kline_row", err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBar(symbol string, tf model.TimeFrame, row []interface{}) (model.Bar, error) {
	if len(row) < 11 {
		return model.Bar{}, fmt.Errorf("expected 11 fields, got %d", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return model.Bar{}, fmt.Errorf("openTime field is not numeric")
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return model.Bar{}, fmt.Errorf("closeTime field is not numeric")
	}
	numTrades, ok := row[8].(float64)
	if !ok {
		return model.Bar{}, fmt.Errorf("numTrades field is not numeric")
	}

	b := model.Bar{
		Candle: model.Candle{
			Symbol:      symbol,
			TimeFrame:   tf,
			OpenTimeMs:  int64(openTime),
			CloseTimeMs: int64(closeTime),
			Open:        parseFloat(row[1]),
			High:        parseFloat(row[2]),
			Low:         parseFloat(row[3]),
			Close:       parseFloat(row[4]),
			Volume:      parseFloat(row[5]),
			NumTrades:   int64(numTrades),
			Closed:      true,
		},
		QuoteVolume:         parseFloat(row[7]),
		TakerBuyBaseVolume:  parseFloat(row[9]),
		TakerBuyQuoteVolume: parseFloat(row[10]),
	}
	return b, nil
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
