// Package stats provides the small set of statistical helpers the rule
// engine needs: sampling-interval inference, percentiles, and ordinary
// least squares with a goodness-of-fit measure.
package stats

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// SamplingMinutes infers the capture's sampling interval as the median gap
// between consecutive timestamps, in minutes. Returns 0 when fewer than two
// increasing samples exist.
func SamplingMinutes(timestamps []time.Time) float64 {
	if len(timestamps) < 2 {
		return 0
	}
	deltas := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i].After(timestamps[i-1]) {
			deltas = append(deltas, timestamps[i].Sub(timestamps[i-1]).Minutes())
		}
	}
	if len(deltas) == 0 {
		return 0
	}
	median, err := stats.Median(deltas)
	if err != nil {
		return 0
	}
	return median
}

// Percentile returns the pth percentile of values, or NaN when values is empty.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	v, err := stats.PercentileNearestRank(values, p)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Fit is the result of an ordinary least squares fit of y against x.
type Fit struct {
	Slope     float64
	Intercept float64
	R2        float64
}

// Linear fits y = intercept + slope*x and reports the coefficient of
// determination. Returns ok=false when fewer than two points are supplied,
// the lengths disagree, or x carries no variance.
func Linear(xs, ys []float64) (Fit, bool) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return Fit{}, false
	}

	meanX, err := stats.Mean(xs)
	if err != nil {
		return Fit{}, false
	}
	meanY, err := stats.Mean(ys)
	if err != nil {
		return Fit{}, false
	}

	var ssXY, ssXX, ssYY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		ssXY += dx * dy
		ssXX += dx * dx
		ssYY += dy * dy
	}
	if ssXX == 0 {
		return Fit{}, false
	}

	slope := ssXY / ssXX
	fit := Fit{
		Slope:     slope,
		Intercept: meanY - slope*meanX,
	}
	if ssYY > 0 {
		r, err := stats.Pearson(xs, ys)
		if err == nil {
			fit.R2 = r * r
		}
	}
	return fit, true
}
