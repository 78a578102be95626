package api

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lox/sameday/internal/history"
	"github.com/lox/sameday/internal/imagegen"
	"github.com/lox/sameday/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	histogramBins  = 20
	topTableLength = 10

	// deltaThreshold is the card highlight band; imagegen.BandThreshold is
	// used for the written interpretation.
	deltaThreshold = 2.0
)

// DatasetInfo describes the active table.
type DatasetInfo struct {
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	ValidFirst   time.Time `json:"valid_first"`
	ValidLast    time.Time `json:"valid_last"`
	HasValid     bool      `json:"has_valid"`
	TotalDays    int       `json:"total_days"`
	ValidDays    int       `json:"valid_days"`
	ValidPercent float64   `json:"valid_percent"`
	SourceHash   string    `json:"source_hash"`
	Uploaded     bool      `json:"uploaded"`

	Report models.LoadReport `json:"report"`
}

func newDatasetInfo(t *models.Table, uploaded bool) *DatasetInfo {
	info := &DatasetInfo{
		TotalDays:  t.Len(),
		ValidDays:  t.ValidCount(),
		SourceHash: t.SourceHash,
		Uploaded:   uploaded,
		Report:     t.Report,
	}
	info.First, info.Last, _ = t.DateRange()
	info.ValidFirst, info.ValidLast, info.HasValid = t.ValidDateRange()
	if info.TotalDays > 0 {
		info.ValidPercent = float64(info.ValidDays) / float64(info.TotalDays) * 100
	}
	return info
}

// Card is one of the four headline metric tiles.
type Card struct {
	Label string
	Value string
	Delta string
	Class string // hot, cold or normal
}

// Interpretation is the written summary beneath the charts.
type Interpretation struct {
	Band     imagegen.Band
	Headline string
	Points   []string
}

// TrendPoint is one year on the trend chart.
type TrendPoint struct {
	Year   int     `json:"year"`
	Value  float64 `json:"value"`
	Target bool    `json:"target"`
}

// ChartData feeds the client-side charts.
type ChartData struct {
	Trend     []TrendPoint     `json:"trend"`
	Mean      float64          `json:"mean"`
	Target    float64          `json:"target"`
	Histogram []history.Bin    `json:"histogram"`
	Box       history.BoxStats `json:"box"`
}

// TopRow is a row in the hottest and coldest tables.
type TopRow struct {
	Rank     int
	Year     int
	Avg      float64
	Min      string
	Max      string
	Selected bool
}

// Dashboard is everything the index page renders for a comparison.
type Dashboard struct {
	Comparison     *models.Comparison
	Cards          []Card
	Interpretation Interpretation
	Chart          ChartData
	Hottest        []TopRow
	Coldest        []TopRow
	StdText        string
}

func newDashboard(c *models.Comparison) *Dashboard {
	return &Dashboard{
		Comparison:     c,
		Cards:          metricCards(c),
		Interpretation: interpret(c),
		Chart:          chartData(c),
		Hottest:        topRows(history.Hottest(c.Cohort, topTableLength), c.TargetDate.Year()),
		Coldest:        topRows(history.Coldest(c.Cohort, topTableLength), c.TargetDate.Year()),
		StdText:        formatStd(c.HistoricalStd),
	}
}

func metricCards(c *models.Comparison) []Card {
	avg := Card{Label: "Average", Value: fmt.Sprintf("%.1f°C", c.TargetAvg), Class: "normal"}
	switch {
	case c.DiffFromMean > deltaThreshold:
		avg.Class = "hot"
		avg.Delta = fmt.Sprintf("+%.1f°C vs normal", c.DiffFromMean)
	case c.DiffFromMean < -deltaThreshold:
		avg.Class = "cold"
		avg.Delta = fmt.Sprintf("%.1f°C vs normal", c.DiffFromMean)
	default:
		avg.Delta = fmt.Sprintf("%+.1f°C vs normal", c.DiffFromMean)
	}

	rankText, rankClass := percentileBand(c.Percentile)

	return []Card{
		avg,
		{Label: "Minimum", Value: formatNullTemp(c.TargetMin), Delta: "overnight", Class: "normal"},
		{Label: "Maximum", Value: formatNullTemp(c.TargetMax), Delta: "daytime high", Class: "normal"},
		{
			Label: "Rank",
			Value: imagegen.Ordinal(c.HotRank),
			Delta: fmt.Sprintf("of %d years, %s", c.HistoricalCount, rankText),
			Class: rankClass,
		},
	}
}

// percentileBand describes where a percentile sits in the cohort.
func percentileBand(pct float64) (text, class string) {
	switch {
	case pct >= 90:
		return fmt.Sprintf("top %.0f%%", 100-pct), "hot"
	case pct <= 10:
		return fmt.Sprintf("bottom %.0f%%", pct), "cold"
	default:
		return fmt.Sprintf("top %.0f%%", 100-pct), "normal"
	}
}

func interpret(c *models.Comparison) Interpretation {
	date := c.TargetDate.Format("January 2, 2006")
	band := imagegen.BandFor(c.DiffFromMean)
	in := Interpretation{Band: band}

	switch band {
	case imagegen.BandHot:
		in.Headline = fmt.Sprintf("%s was much hotter than the same day in other years.", date)
		in.Points = []string{
			fmt.Sprintf("The average of %.1f°C was %.1f°C above normal (%.1f°C).", c.TargetAvg, c.DiffFromMean, c.HistoricalMean),
			fmt.Sprintf("It was the %s hottest of %d years on record.", imagegen.Ordinal(c.HotRank), c.HistoricalCount),
			fmt.Sprintf("That puts it in the top %.0f%%, an unusually warm day.", 100-c.Percentile),
		}
	case imagegen.BandCold:
		in.Headline = fmt.Sprintf("%s was much colder than the same day in other years.", date)
		in.Points = []string{
			fmt.Sprintf("The average of %.1f°C was %.1f°C below normal (%.1f°C).", c.TargetAvg, math.Abs(c.DiffFromMean), c.HistoricalMean),
			fmt.Sprintf("It was the %s coldest of %d years on record.", imagegen.Ordinal(c.ColdRank), c.HistoricalCount),
			fmt.Sprintf("That puts it in the bottom %.0f%%, an unusually cold day.", c.Percentile),
		}
	default:
		in.Headline = fmt.Sprintf("%s was close to normal for the time of year.", date)
		in.Points = []string{
			fmt.Sprintf("The average of %.1f°C was similar to normal (%.1f°C), a difference of %+.1f°C.", c.TargetAvg, c.HistoricalMean, c.DiffFromMean),
			fmt.Sprintf("It ranked %s hottest of %d years on record.", imagegen.Ordinal(c.HotRank), c.HistoricalCount),
			fmt.Sprintf("It sits at the %.0f%% mark, an ordinary day.", 100-c.Percentile),
		}
	}
	return in
}

func chartData(c *models.Comparison) ChartData {
	vals := make([]float64, 0, len(c.Cohort))
	trend := make([]TrendPoint, 0, len(c.Cohort))
	marked := false
	for _, r := range c.Cohort {
		p := TrendPoint{Year: r.Year, Value: r.AvgTemp.Float64}
		if !marked && r.Year == c.TargetDate.Year() {
			p.Target = true
			marked = true
		}
		trend = append(trend, p)
		vals = append(vals, r.AvgTemp.Float64)
	}
	return ChartData{
		Trend:     trend,
		Mean:      c.HistoricalMean,
		Target:    c.TargetAvg,
		Histogram: history.Histogram(vals, histogramBins),
		Box:       history.Box(vals),
	}
}

func topRows(recs []models.DailyRecord, selectedYear int) []TopRow {
	rows := make([]TopRow, len(recs))
	for i, r := range recs {
		rows[i] = TopRow{
			Rank:     i + 1,
			Year:     r.Year,
			Avg:      r.AvgTemp.Float64,
			Min:      formatNullTemp(r.MinTemp),
			Max:      formatNullTemp(r.MaxTemp),
			Selected: r.Year == selectedYear,
		}
	}
	return rows
}

func formatNullTemp(v sql.NullFloat64) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C", v.Float64)
}

func formatStd(std float64) string {
	if math.IsNaN(std) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C", std)
}
