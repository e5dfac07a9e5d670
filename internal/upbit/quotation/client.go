// Package quotation wraps the public Upbit quotation API: market listing
// and 30-minute candle retrieval, including paged historical backfill.
package quotation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
	"github.com/sungminna/upbit-spike-trader/pkg/ratelimit"
)

const (
	candleEndpoint = "/v1/candles/minutes/30"
	maxPageCount   = 200 // Upbit's max count per candle request
)

// Client is the unauthenticated quotation API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

// NewClient creates a quotation client against the given base URL.
func NewClient(baseURL string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: limiter,
	}
}

// Market represents a tradable market pair.
type Market struct {
	Market        string `json:"market"`
	KoreanName    string `json:"korean_name"`
	EnglishName   string `json:"english_name"`
	MarketWarning string `json:"market_warning,omitempty"`
}

// GetMarkets retrieves all markets tradable on the exchange.
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "/v1/market/all?is_details=true")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var markets []Market
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}

	return markets, nil
}

// GetCandles retrieves the most recent count 30-minute candles for a
// market, newest first. A non-zero to bounds the result to candles at or
// before that instant.
func (c *Client) GetCandles(ctx context.Context, market string, count int, to time.Time) (model.TimeSeries, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("market", market)
	params.Add("count", strconv.Itoa(count))
	if !to.IsZero() {
		params.Add("to", to.UTC().Format(model.CandleTimeLayout))
	}

	resp, err := c.doRequest(ctx, candleEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var candles model.TimeSeries
	if err := json.NewDecoder(resp.Body).Decode(&candles); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}

	return candles, nil
}

// Backfill walks the candle history backward from now until the oldest
// fetched candle predates until, delivering each page to sink as it
// arrives. An empty page ends the walk. A page-fetch or sink failure
// terminates the backfill with an error; pages already delivered stay
// delivered, so a partial backfill is kept rather than rolled back.
func (c *Client) Backfill(ctx context.Context, market string, until time.Time, sink func(model.TimeSeries) error) error {
	to := time.Now()

	for {
		page, err := c.GetCandles(ctx, market, maxPageCount, to)
		if err != nil {
			return fmt.Errorf("backfill page up to %s: %w", to.UTC().Format(model.CandleTimeLayout), err)
		}
		if len(page) == 0 {
			return nil
		}

		if err := sink(page); err != nil {
			return fmt.Errorf("backfill sink: %w", err)
		}

		oldest := page[len(page)-1].Time()
		if oldest.IsZero() || !oldest.Before(to) {
			// Unparseable or non-advancing page; stop rather than loop.
			return nil
		}
		if oldest.Before(until) {
			return nil
		}
		to = oldest
	}
}

func (c *Client) doRequest(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	return resp, nil
}
