package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
)

func seriesFromVolumes(volumes ...float64) model.TimeSeries {
	// volumes are given newest first, matching the wire order.
	series := make(model.TimeSeries, len(volumes))
	for i, v := range volumes {
		series[i] = model.Candle{
			Market:         "KRW-X",
			TimeUTC:        fmt.Sprintf("2024-10-01T%02d:30:00", len(volumes)-i),
			OpeningPrice:   100,
			TradePrice:     101,
			AccTradeVolume: v,
		}
	}
	return series
}

func defaultDetector() *SpikeDetector {
	return NewSpikeDetector(1000, 20.0, 1.0, 1.5)
}

func TestEvaluate_TooFewCandles(t *testing.T) {
	detector := defaultDetector()

	_, ok := detector.Evaluate("KRW-X", seriesFromVolumes(1, 1, 1))
	assert.False(t, ok)
}

func TestEvaluate_FlagsLargeSpike(t *testing.T) {
	detector := defaultDetector()

	// Nine quiet candles and a 100x latest one. The outlier is excluded
	// from the average, which stays near 1, so 100 > 20*avg.
	series := seriesFromVolumes(100, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	eval, ok := detector.Evaluate("KRW-X", series)

	require.True(t, ok)
	assert.True(t, eval.IsSpike)
	assert.Equal(t, 100.0, eval.LatestVolume)
	assert.InDelta(t, 1.0, eval.FilteredAvgVolume, 0.01)
}

func TestEvaluate_NearUniformNeverSpikes(t *testing.T) {
	detector := defaultDetector()

	volumes := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		// All volumes within 2x of each other.
		volumes = append(volumes, 10+float64(i%10))
	}
	eval, ok := detector.Evaluate("KRW-X", seriesFromVolumes(volumes...))

	require.True(t, ok)
	assert.False(t, eval.IsSpike)
}

func TestEvaluate_QuartileBounds(t *testing.T) {
	detector := defaultDetector()

	// Ascending sorted volumes 1..8: Q1 = index 2 -> 3, Q3 = index 6 -> 7,
	// IQR = 4, bounds [0, 13]; nothing filtered, avg = 4.5.
	eval, ok := detector.Evaluate("KRW-X", seriesFromVolumes(8, 7, 6, 5, 4, 3, 2, 1))

	require.True(t, ok)
	assert.InDelta(t, 4.5, eval.FilteredAvgVolume, 1e-9)
	assert.False(t, eval.IsSpike)
}

func TestEvaluate_WindowBoundsLookback(t *testing.T) {
	detector := NewSpikeDetector(5, 20.0, 1.0, 1.5)

	// Huge volumes beyond the window must not affect the average.
	series := seriesFromVolumes(100, 1, 1, 1, 1, 1000, 1000, 1000)
	eval, ok := detector.Evaluate("KRW-X", series)

	require.True(t, ok)
	assert.True(t, eval.IsSpike)
}

func TestEvaluate_CarriesLatestPrices(t *testing.T) {
	detector := defaultDetector()

	series := seriesFromVolumes(1, 1, 1, 1)
	series[0].OpeningPrice = 90
	series[0].TradePrice = 95

	eval, ok := detector.Evaluate("KRW-X", series)

	require.True(t, ok)
	assert.Equal(t, 90.0, eval.LatestOpen)
	assert.Equal(t, 95.0, eval.LatestClose)
	assert.True(t, eval.Rising())
}
