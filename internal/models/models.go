package models

import (
	"database/sql"
	"fmt"
	"time"
)

// MonthDay is the year-independent calendar key used to group records into
// cohorts. Feb 29 is its own key and never matches Feb 28 or Mar 1.
type MonthDay struct {
	Month time.Month
	Day   int
}

func KeyOf(t time.Time) MonthDay {
	return MonthDay{Month: t.Month(), Day: t.Day()}
}

func (k MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(k.Month), k.Day)
}

type DailyRecord struct {
	Date    time.Time
	Station string
	AvgTemp sql.NullFloat64
	MinTemp sql.NullFloat64
	MaxTemp sql.NullFloat64

	Year  int
	Month time.Month
	Day   int
	Key   MonthDay
}

// NewDailyRecord fills the derived calendar fields from date.
func NewDailyRecord(date time.Time, station string, avg, min, max sql.NullFloat64) DailyRecord {
	return DailyRecord{
		Date:    date,
		Station: station,
		AvgTemp: avg,
		MinTemp: min,
		MaxTemp: max,
		Year:    date.Year(),
		Month:   date.Month(),
		Day:     date.Day(),
		Key:     KeyOf(date),
	}
}

// LoadReport describes what the loader kept and dropped.
type LoadReport struct {
	LinesRead      int
	MalformedLines int
	BlankDates     int
	BlankStations  int
	BadDates       int
	RowsKept       int
	FlaggedRows    int
}

// Table is the cleaned, immutable result of a load. Records are kept in
// file order; callers must not modify them.
type Table struct {
	Records    []DailyRecord
	SourceHash string
	Report     LoadReport
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// ValidCount returns the number of records with a non-null average.
func (t *Table) ValidCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, r := range t.Records {
		if r.AvgTemp.Valid {
			n++
		}
	}
	return n
}

// DateRange returns the earliest and latest dates in the table.
func (t *Table) DateRange() (first, last time.Time, ok bool) {
	return t.dateRange(false)
}

// ValidDateRange is DateRange restricted to records with a non-null
// average. It bounds the dates a user may pick.
func (t *Table) ValidDateRange() (first, last time.Time, ok bool) {
	return t.dateRange(true)
}

func (t *Table) dateRange(validOnly bool) (first, last time.Time, ok bool) {
	if t == nil {
		return first, last, false
	}
	for _, r := range t.Records {
		if validOnly && !r.AvgTemp.Valid {
			continue
		}
		if !ok || r.Date.Before(first) {
			first = r.Date
		}
		if !ok || r.Date.After(last) {
			last = r.Date
		}
		ok = true
	}
	return first, last, ok
}

// Comparison holds the statistics for one target date against every
// same-month-day record in the table.
type Comparison struct {
	TargetDate time.Time
	TargetAvg  float64
	TargetMin  sql.NullFloat64
	TargetMax  sql.NullFloat64

	// Cohort is sorted by year and only holds records with a valid average.
	Cohort []DailyRecord

	HistoricalMean  float64
	HistoricalStd   float64 // NaN when the cohort has a single record
	HistoricalMin   float64
	HistoricalMax   float64
	HistoricalCount int

	DiffFromMean float64
	Percentile   float64
	HotRank      int
	ColdRank     int
}
