package fmath

import(
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SigmaClip iteratively discards samples more than nSigma deviations
// from the median, then reports the median and standard deviation of
// what survives. Standard trick for estimating sky background without
// the stars polluting it.
func SigmaClip(vals []float64, nSigma float64, iters int) (median, stddev float64) {
	kept := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return 0, 0
	}
	if len(kept) == 1 {
		return kept[0], 0
	}

	for i := 0; i < iters; i++ {
		sort.Float64s(kept)
		median = stat.Quantile(0.5, stat.Empirical, kept, nil)
		stddev = stat.StdDev(kept, nil)
		if stddev == 0 {
			return median, 0
		}

		next := make([]float64, 0, len(kept))
		for _, v := range kept {
			if math.Abs(v-median) <= nSigma*stddev {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) || len(next) < 2 {
			break
		}
		kept = next
	}

	sort.Float64s(kept)
	median = stat.Quantile(0.5, stat.Empirical, kept, nil)
	stddev = stat.StdDev(kept, nil)
	return median, stddev
}
