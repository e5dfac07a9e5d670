// Package analysis classifies abnormal trading volume using an
// IQR-filtered rolling average over the recent candle window.
package analysis

import (
	"sort"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
)

// minSamples is the smallest window that supports quartile estimation.
const minSamples = 4

// SpikeDetector evaluates a market's series for volume spikes.
type SpikeDetector struct {
	window    int
	threshold float64
	lowerMult float64
	upperMult float64
}

// NewSpikeDetector creates a detector. window bounds how many recent
// candles are considered; threshold is the multiple of the filtered
// average the latest volume must exceed; lowerMult and upperMult scale
// the IQR when bounding normal volume. The bounds are deliberately
// asymmetric: the lower multiplier tolerates quiet periods while the
// upper one still admits moderately busy candles into the average.
func NewSpikeDetector(window int, threshold, lowerMult, upperMult float64) *SpikeDetector {
	return &SpikeDetector{
		window:    window,
		threshold: threshold,
		lowerMult: lowerMult,
		upperMult: upperMult,
	}
}

// Evaluate computes the outlier-filtered average volume over the recent
// window and compares the latest candle's volume against it. It returns
// false when the series is too short for quartile estimation or the
// filter leaves no samples.
func (d *SpikeDetector) Evaluate(market string, series model.TimeSeries) (model.SpikeEvaluation, bool) {
	if len(series) < minSamples {
		return model.SpikeEvaluation{}, false
	}

	recent := series
	if len(recent) > d.window {
		recent = recent[:d.window]
	}

	volumes := make([]float64, len(recent))
	for i, c := range recent {
		volumes[i] = c.AccTradeVolume
	}

	sorted := append([]float64(nil), volumes...)
	sort.Float64s(sorted)

	q1 := sorted[len(sorted)/4]
	q3 := sorted[len(sorted)*3/4]
	iqr := q3 - q1

	lower := q1 - d.lowerMult*iqr
	if lower < 0 {
		lower = 0
	}
	upper := q3 + d.upperMult*iqr

	var sum float64
	var n int
	for _, v := range volumes {
		if v >= lower && v <= upper {
			sum += v
			n++
		}
	}
	if n == 0 {
		return model.SpikeEvaluation{}, false
	}
	avg := sum / float64(n)

	latest := recent[0]
	return model.SpikeEvaluation{
		Market:            market,
		FilteredAvgVolume: avg,
		LatestVolume:      latest.AccTradeVolume,
		LatestOpen:        latest.OpeningPrice,
		LatestClose:       latest.TradePrice,
		IsSpike:           latest.AccTradeVolume > d.threshold*avg,
	}, true
}
