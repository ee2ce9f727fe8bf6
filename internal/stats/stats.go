// Package stats computes descriptive statistics over temperature vectors.
package stats

import (
	"math"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
)

// Compute returns min, max, mean, and population standard deviation
// (divide by N, not N-1) over values. Summation runs left to right in two
// passes (mean, then squared deviations), so results are bit-reproducible
// for a given input ordering. An empty vector yields the zero Stats.
func Compute(values []float64) domain.Stats {
	if len(values) == 0 {
		return domain.Stats{}
	}

	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / float64(len(values)))

	return domain.Stats{Min: min, Max: max, Mean: mean, Std: std}
}
