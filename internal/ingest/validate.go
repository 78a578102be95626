package ingest

import (
	"github.com/lox/sameday/internal/models"
)

const (
	FlagTempOutOfRange  = "temp_out_of_range"
	FlagMinAboveMax     = "min_above_max"
	FlagAvgOutsideRange = "avg_outside_range"
)

// Plausible bounds for a surface air temperature reading in Celsius.
const (
	minPlausibleTemp = -60.0
	maxPlausibleTemp = 60.0
)

// ValidateRecord returns quality flags for a record. Flags are informational;
// flagged records stay in the table.
func ValidateRecord(rec *models.DailyRecord) []string {
	var flags []string

	for _, v := range []struct {
		valid bool
		temp  float64
	}{
		{rec.AvgTemp.Valid, rec.AvgTemp.Float64},
		{rec.MinTemp.Valid, rec.MinTemp.Float64},
		{rec.MaxTemp.Valid, rec.MaxTemp.Float64},
	} {
		if v.valid && (v.temp < minPlausibleTemp || v.temp > maxPlausibleTemp) {
			flags = append(flags, FlagTempOutOfRange)
			break
		}
	}

	if rec.MinTemp.Valid && rec.MaxTemp.Valid {
		if rec.MinTemp.Float64 > rec.MaxTemp.Float64 {
			flags = append(flags, FlagMinAboveMax)
		} else if rec.AvgTemp.Valid && (rec.AvgTemp.Float64 < rec.MinTemp.Float64 || rec.AvgTemp.Float64 > rec.MaxTemp.Float64) {
			flags = append(flags, FlagAvgOutsideRange)
		}
	}

	return flags
}
