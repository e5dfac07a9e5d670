package model

import (
	"time"
)

// CandleTimeLayout is the layout of candle_date_time_utc as returned by
// the Upbit quotation API, e.g. "2024-10-01T00:30:00".
const CandleTimeLayout = "2006-01-02T15:04:05"

// Candle represents one 30-minute OHLCV candle as returned by the Upbit
// quotation API. The JSON field names double as the column names of the
// persisted per-market CSV files; TimeUTC is the primary key of a series.
type Candle struct {
	Market         string  `json:"market"`
	TimeUTC        string  `json:"candle_date_time_utc"`
	TimeKST        string  `json:"candle_date_time_kst"`
	OpeningPrice   float64 `json:"opening_price"`
	HighPrice      float64 `json:"high_price"`
	LowPrice       float64 `json:"low_price"`
	TradePrice     float64 `json:"trade_price"`
	Timestamp      int64   `json:"timestamp"`
	AccTradePrice  float64 `json:"candle_acc_trade_price"`
	AccTradeVolume float64 `json:"candle_acc_trade_volume"`
	Unit           int     `json:"unit"`
}

// Time parses the candle's UTC key. A zero time is returned for a
// malformed key.
func (c Candle) Time() time.Time {
	t, err := time.Parse(CandleTimeLayout, c.TimeUTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TimeSeries is the candle history of one market, newest first.
type TimeSeries []Candle

// Latest returns the most recent candle of the series.
func (s TimeSeries) Latest() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[0], true
}

// Holding is a non-settlement asset currently held in the account,
// as reported by the Upbit exchange API. Read-only to the bot.
type Holding struct {
	Currency    string
	Balance     float64
	AvgBuyPrice float64
}

// Market returns the tradable pair for the holding in the given quote
// currency, e.g. "KRW-BTC" for currency "BTC".
func (h Holding) Market(quote string) string {
	return quote + "-" + h.Currency
}

// SpikeEvaluation is the result of checking one market's series for an
// abnormal trading volume. It is recomputed every cycle and never stored.
type SpikeEvaluation struct {
	Market            string
	FilteredAvgVolume float64
	LatestVolume      float64
	LatestOpen        float64
	LatestClose       float64
	IsSpike           bool
}

// Rising reports whether the latest candle closed above its open.
func (e SpikeEvaluation) Rising() bool {
	return e.LatestClose > e.LatestOpen
}
