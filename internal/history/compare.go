// Package history compares one day's average temperature against every
// same-calendar-day record in a station's history.
package history

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/lox/sameday/internal/models"
)

var (
	// ErrNoHistoricalData means no record with a valid average shares the
	// target's month and day.
	ErrNoHistoricalData = errors.New("no historical data for this calendar day")

	// ErrNoExactMatch means the cohort exists but holds no record for the
	// target's year. Other years are not compared in that case.
	ErrNoExactMatch = errors.New("no exact record for the requested date")
)

// Cohort returns the records sharing key that have a valid average, in
// table order.
func Cohort(t *models.Table, key models.MonthDay) []models.DailyRecord {
	if t == nil {
		return nil
	}
	var cohort []models.DailyRecord
	for _, r := range t.Records {
		if r.Key == key && r.AvgTemp.Valid {
			cohort = append(cohort, r)
		}
	}
	return cohort
}

// Compare computes how target's average temperature ranks against every
// year's record for the same month and day.
//
// When several records share the target's year the first one in table
// order is used.
func Compare(t *models.Table, target time.Time) (*models.Comparison, error) {
	cohort := Cohort(t, models.KeyOf(target))
	if len(cohort) == 0 {
		return nil, ErrNoHistoricalData
	}

	targetIdx := -1
	for i, r := range cohort {
		if r.Year == target.Year() {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return nil, ErrNoExactMatch
	}
	row := cohort[targetIdx]
	value := row.AvgTemp.Float64

	temps := make([]float64, len(cohort))
	for i, r := range cohort {
		temps[i] = r.AvgTemp.Float64
	}
	mean := Mean(temps)
	min, max := MinMax(temps)

	var below, atOrAbove, atOrBelow int
	for _, v := range temps {
		if v < value {
			below++
		}
		if v >= value {
			atOrAbove++
		}
		if v <= value {
			atOrBelow++
		}
	}

	sorted := make([]models.DailyRecord, len(cohort))
	copy(sorted, cohort)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Year < sorted[j].Year
	})

	n := len(cohort)
	return &models.Comparison{
		TargetDate:      row.Date,
		TargetAvg:       value,
		TargetMin:       row.MinTemp,
		TargetMax:       row.MaxTemp,
		Cohort:          sorted,
		HistoricalMean:  mean,
		HistoricalStd:   SampleStdDev(temps),
		HistoricalMin:   min,
		HistoricalMax:   max,
		HistoricalCount: n,
		DiffFromMean:    value - mean,
		Percentile:      float64(below) / float64(n) * 100,
		// Ties count against the target: three years sharing the hottest
		// value all rank 3rd.
		HotRank:  atOrAbove,
		ColdRank: atOrBelow,
	}, nil
}

// Hottest returns up to n cohort records ordered hottest first. Ties keep
// their cohort order.
func Hottest(cohort []models.DailyRecord, n int) []models.DailyRecord {
	return topN(cohort, n, func(a, b float64) bool { return a > b })
}

// Coldest returns up to n cohort records ordered coldest first.
func Coldest(cohort []models.DailyRecord, n int) []models.DailyRecord {
	return topN(cohort, n, func(a, b float64) bool { return a < b })
}

func topN(cohort []models.DailyRecord, n int, less func(a, b float64) bool) []models.DailyRecord {
	ranked := make([]models.DailyRecord, 0, len(cohort))
	for _, r := range cohort {
		if r.AvgTemp.Valid {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i].AvgTemp.Float64, ranked[j].AvgTemp.Float64)
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// SampleStdDev uses the n-1 divisor and is NaN for fewer than two values.
func SampleStdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	m := Mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func MinMax(vals []float64) (min, max float64) {
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	min, max = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
