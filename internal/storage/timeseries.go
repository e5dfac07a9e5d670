// Package storage persists the per-market candle history as CSV files
// and the debounce ledger as a newline-delimited symbol list.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
)

// csvColumns mirrors the Upbit candle payload field order. The header is
// written on every full save so the files are self-describing.
var csvColumns = []string{
	"market",
	"candle_date_time_utc",
	"candle_date_time_kst",
	"opening_price",
	"high_price",
	"low_price",
	"trade_price",
	"timestamp",
	"candle_acc_trade_price",
	"candle_acc_trade_volume",
	"unit",
}

// TimeSeriesStore keeps one CSV file per market under a data directory.
type TimeSeriesStore struct {
	dir string
}

// NewTimeSeriesStore creates a store rooted at dir, creating it if needed.
func NewTimeSeriesStore(dir string) (*TimeSeriesStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &TimeSeriesStore{dir: dir}, nil
}

func (s *TimeSeriesStore) path(market string) string {
	return filepath.Join(s.dir, market+"-30min_candle.csv")
}

// Exists reports whether a series file is present for the market.
func (s *TimeSeriesStore) Exists(market string) bool {
	_, err := os.Stat(s.path(market))
	return err == nil
}

// Load reads the stored series for a market. A missing file yields an
// empty series. A corrupt file is logged and also yields an empty series:
// ingestion favors availability, and the next save rewrites the file.
func (s *TimeSeriesStore) Load(market string) (model.TimeSeries, error) {
	f, err := os.Open(s.path(market))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open series for %s: %w", market, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		log.WithField("market", market).Warnf("corrupt series file, starting empty: %v", err)
		return nil, nil
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	series := make(model.TimeSeries, 0, len(rows)-1)
	for _, row := range rows[1:] {
		candle, err := parseRow(row)
		if err != nil {
			log.WithField("market", market).Warnf("corrupt series row, starting empty: %v", err)
			return nil, nil
		}
		series = append(series, candle)
	}

	return series, nil
}

// Save atomically overwrites the series file for a market. The series is
// written to a temporary file in the same directory and renamed into
// place, so concurrent readers never observe a partial write.
func (s *TimeSeriesStore) Save(market string, series model.TimeSeries) error {
	tmp, err := os.CreateTemp(s.dir, market+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", market, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCSV(tmp, series, true); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write series for %s: %w", market, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", market, err)
	}

	if err := os.Rename(tmp.Name(), s.path(market)); err != nil {
		return fmt.Errorf("failed to replace series for %s: %w", market, err)
	}
	return nil
}

// Append adds a backfill page to the end of the series file, writing the
// header only when the file is new or empty. Backfill pages arrive newest
// first and walk backward, so appending preserves descending order.
func (s *TimeSeriesStore) Append(market string, batch model.TimeSeries) error {
	f, err := os.OpenFile(s.path(market), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open series for %s: %w", market, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat series for %s: %w", market, err)
	}

	if err := writeCSV(f, batch, info.Size() == 0); err != nil {
		return fmt.Errorf("failed to append series for %s: %w", market, err)
	}
	return nil
}

// Merge combines incoming candles into an existing series. A candle whose
// key is present in both is replaced by the incoming value; all other
// existing candles are retained. The result is sorted descending by key.
// Merge is pure and idempotent.
func Merge(existing, incoming model.TimeSeries) model.TimeSeries {
	byKey := make(map[string]model.Candle, len(existing)+len(incoming))
	for _, c := range existing {
		byKey[c.TimeUTC] = c
	}
	for _, c := range incoming {
		byKey[c.TimeUTC] = c
	}

	merged := make(model.TimeSeries, 0, len(byKey))
	for _, c := range byKey {
		merged = append(merged, c)
	}
	// The fixed time layout sorts lexicographically in chronological order.
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].TimeUTC > merged[j].TimeUTC
	})
	return merged
}

func writeCSV(f *os.File, series model.TimeSeries, header bool) error {
	w := csv.NewWriter(f)
	if header {
		if err := w.Write(csvColumns); err != nil {
			return err
		}
	}
	for _, c := range series {
		row := []string{
			c.Market,
			c.TimeUTC,
			c.TimeKST,
			formatFloat(c.OpeningPrice),
			formatFloat(c.HighPrice),
			formatFloat(c.LowPrice),
			formatFloat(c.TradePrice),
			strconv.FormatInt(c.Timestamp, 10),
			formatFloat(c.AccTradePrice),
			formatFloat(c.AccTradeVolume),
			strconv.Itoa(c.Unit),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseRow(row []string) (model.Candle, error) {
	if len(row) != len(csvColumns) {
		return model.Candle{}, fmt.Errorf("expected %d columns, got %d", len(csvColumns), len(row))
	}

	var (
		candle model.Candle
		err    error
	)
	candle.Market = row[0]
	candle.TimeUTC = row[1]
	candle.TimeKST = row[2]
	if candle.OpeningPrice, err = strconv.ParseFloat(row[3], 64); err != nil {
		return model.Candle{}, fmt.Errorf("opening_price: %w", err)
	}
	if candle.HighPrice, err = strconv.ParseFloat(row[4], 64); err != nil {
		return model.Candle{}, fmt.Errorf("high_price: %w", err)
	}
	if candle.LowPrice, err = strconv.ParseFloat(row[5], 64); err != nil {
		return model.Candle{}, fmt.Errorf("low_price: %w", err)
	}
	if candle.TradePrice, err = strconv.ParseFloat(row[6], 64); err != nil {
		return model.Candle{}, fmt.Errorf("trade_price: %w", err)
	}
	if candle.Timestamp, err = strconv.ParseInt(row[7], 10, 64); err != nil {
		return model.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	if candle.AccTradePrice, err = strconv.ParseFloat(row[8], 64); err != nil {
		return model.Candle{}, fmt.Errorf("candle_acc_trade_price: %w", err)
	}
	if candle.AccTradeVolume, err = strconv.ParseFloat(row[9], 64); err != nil {
		return model.Candle{}, fmt.Errorf("candle_acc_trade_volume: %w", err)
	}
	if candle.Unit, err = strconv.Atoi(row[10]); err != nil {
		return model.Candle{}, fmt.Errorf("unit: %w", err)
	}
	return candle, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
