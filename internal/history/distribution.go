package history

import (
	"math"
	"sort"
)

// Bin is one histogram bucket covering [Lo, Hi). The last bin is closed.
type Bin struct {
	Lo    float64
	Hi    float64
	Count int
}

// Histogram splits vals into equal-width bins between their min and max.
func Histogram(vals []float64, bins int) []Bin {
	if len(vals) == 0 || bins <= 0 {
		return nil
	}
	lo, hi := MinMax(vals)
	if hi == lo {
		return []Bin{{Lo: lo, Hi: hi, Count: len(vals)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lo = lo + float64(i)*width
		out[i].Hi = lo + float64(i+1)*width
	}
	out[bins-1].Hi = hi

	for _, v := range vals {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// Quantile returns the q-th quantile (0..1) using linear interpolation
// between closest ranks.
func Quantile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// BoxStats summarises a distribution for a box plot.
type BoxStats struct {
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

func Box(vals []float64) BoxStats {
	min, max := MinMax(vals)
	return BoxStats{
		Min:    min,
		Q1:     Quantile(vals, 0.25),
		Median: Quantile(vals, 0.5),
		Q3:     Quantile(vals, 0.75),
		Max:    max,
	}
}
