// Package indicator provides technical-analysis primitives computed over
// OHLCV bar series: moving averages, RSI, MACD, ATR, and Bollinger bands.
// All functions are pure and operate on slices ordered oldest to newest.
package indicator

import (
	"math"

	"ortrader/internal/domain"
)

// Closes extracts the close prices from a bar series, oldest first.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volumes from a bar series, oldest first.
func Volumes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// SMA returns the simple moving average of the last period values, or NaN if
// fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average of the series with the given
// period, seeded with the first value. Returns NaN if the series is shorter
// than period.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// EMASeries computes the full EMA series for values. The result has the same
// length as the input; entries before index period-1 carry the running EMA
// seeded from the first value. Returns nil if fewer than period values exist.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the relative strength index over the last period deltas using
// a rolling mean of gains and losses. Returns NaN when fewer than period+1
// values are available. A series with no losses yields 100, no gains yields 0.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return math.NaN()
	}
	var gains, losses float64
	start := len(values) - period
	for i := start; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (fast EMA minus slow EMA), the signal line
// (EMA of the MACD line), and the histogram (line minus signal) at the last
// value. Conventional periods are 12, 26, 9. All three outputs are NaN when
// the series is shorter than slow+signal values.
func MACD(values []float64, fast, slow, signal int) (line, signalLine, histogram float64) {
	if len(values) < slow+signal {
		nan := math.NaN()
		return nan, nan, nan
	}
	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)
	macdSeries := make([]float64, len(values))
	for i := range values {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}
	signalSeries := EMASeries(macdSeries, signal)
	line = macdSeries[len(macdSeries)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	return line, signalLine, line - signalLine
}

// ATR computes the average true range over the last period bars as a simple
// mean of true ranges. Returns NaN when fewer than period+1 bars exist; the
// extra bar supplies the previous close for the first true range.
func ATR(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return math.NaN()
	}
	var sum float64
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period)
}

func trueRange(b domain.Bar, prevClose float64) float64 {
	hl := b.High - b.Low
	hc := math.Abs(b.High - prevClose)
	lc := math.Abs(b.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// Bollinger returns the middle band (period SMA), upper and lower bands at
// stddev standard deviations for the last period values. All three are NaN
// when the series is too short.
func Bollinger(values []float64, period int, stddev float64) (middle, upper, lower float64) {
	middle = SMA(values, period)
	if math.IsNaN(middle) {
		return middle, middle, middle
	}
	var variance float64
	for _, v := range values[len(values)-period:] {
		d := v - middle
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return middle, middle + stddev*sd, middle - stddev*sd
}

// RelativeVolume compares the most recent volume against the mean of the
// preceding lookback volumes. Returns NaN if fewer than lookback+1 bars are
// available or the baseline mean is zero.
func RelativeVolume(bars []domain.Bar, lookback int) float64 {
	if lookback <= 0 || len(bars) < lookback+1 {
		return math.NaN()
	}
	var sum float64
	for _, b := range bars[len(bars)-1-lookback : len(bars)-1] {
		sum += float64(b.Volume)
	}
	mean := sum / float64(lookback)
	if mean == 0 {
		return math.NaN()
	}
	return float64(bars[len(bars)-1].Volume) / mean
}
