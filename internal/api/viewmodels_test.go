package api

import (
	"bytes"
	"database/sql"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lox/sameday/internal/imagegen"
	"github.com/lox/sameday/internal/models"
)

func comparison(diff, pct float64) *models.Comparison {
	var cohort []models.DailyRecord
	for i, v := range []float64{5, 7, 6, 7, 8} {
		d := time.Date(2000+i, time.March, 1, 0, 0, 0, 0, time.UTC)
		cohort = append(cohort, models.NewDailyRecord(d, "108",
			sql.NullFloat64{Float64: v, Valid: true},
			sql.NullFloat64{Float64: v - 4, Valid: true},
			sql.NullFloat64{}))
	}
	return &models.Comparison{
		TargetDate:      time.Date(2004, time.March, 1, 0, 0, 0, 0, time.UTC),
		TargetAvg:       8,
		TargetMin:       sql.NullFloat64{Float64: 4, Valid: true},
		Cohort:          cohort,
		HistoricalMean:  6.6,
		HistoricalStd:   math.Sqrt(1.3),
		HistoricalMin:   5,
		HistoricalMax:   8,
		HistoricalCount: 5,
		DiffFromMean:    diff,
		Percentile:      pct,
		HotRank:         1,
		ColdRank:        5,
	}
}

func TestPercentileBand(t *testing.T) {
	tests := []struct {
		pct       float64
		wantText  string
		wantClass string
	}{
		{95, "top 5%", "hot"},
		{90, "top 10%", "hot"},
		{50, "top 50%", "normal"},
		{10, "bottom 10%", "cold"},
		{0, "bottom 0%", "cold"},
	}
	for _, tt := range tests {
		text, class := percentileBand(tt.pct)
		if text != tt.wantText || class != tt.wantClass {
			t.Errorf("percentileBand(%v) = %q, %q, want %q, %q", tt.pct, text, class, tt.wantText, tt.wantClass)
		}
	}
}

func TestMetricCards_DeltaBands(t *testing.T) {
	tests := []struct {
		diff      float64
		wantClass string
		wantDelta string
	}{
		{2.5, "hot", "+2.5°C vs normal"},
		{2.0, "normal", "+2.0°C vs normal"},
		{-0.4, "normal", "-0.4°C vs normal"},
		{-2.1, "cold", "-2.1°C vs normal"},
	}
	for _, tt := range tests {
		cards := metricCards(comparison(tt.diff, 50))
		if len(cards) != 4 {
			t.Fatalf("len(cards) = %d, want 4", len(cards))
		}
		if cards[0].Class != tt.wantClass || cards[0].Delta != tt.wantDelta {
			t.Errorf("diff %v: card = %+v, want %s %q", tt.diff, cards[0], tt.wantClass, tt.wantDelta)
		}
	}

	cards := metricCards(comparison(1.4, 80))
	if cards[1].Value != "4.0°C" {
		t.Errorf("min card = %q, want 4.0°C", cards[1].Value)
	}
	if cards[2].Value != "n/a" {
		t.Errorf("max card = %q, want n/a", cards[2].Value)
	}
	if cards[3].Value != "1st" || cards[3].Delta != "of 5 years, top 20%" {
		t.Errorf("rank card = %+v", cards[3])
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		diff     float64
		wantBand imagegen.Band
		wantText string
	}{
		{3.5, imagegen.BandHot, "much hotter"},
		{2.9, imagegen.BandTypical, "close to normal"},
		{-3.5, imagegen.BandCold, "much colder"},
	}
	for _, tt := range tests {
		in := interpret(comparison(tt.diff, 50))
		if in.Band != tt.wantBand {
			t.Errorf("diff %v: band = %s, want %s", tt.diff, in.Band, tt.wantBand)
		}
		if !strings.Contains(in.Headline, tt.wantText) {
			t.Errorf("diff %v: headline = %q, want %q", tt.diff, in.Headline, tt.wantText)
		}
		if len(in.Points) != 3 {
			t.Errorf("diff %v: %d points, want 3", tt.diff, len(in.Points))
		}
	}

	cold := interpret(comparison(-3.5, 5))
	if !strings.Contains(cold.Points[1], "5th coldest") {
		t.Errorf("cold rank point = %q, want 5th coldest", cold.Points[1])
	}
}

func TestDashboard(t *testing.T) {
	d := newDashboard(comparison(1.4, 80))

	if len(d.Chart.Trend) != 5 {
		t.Fatalf("len(Trend) = %d, want 5", len(d.Chart.Trend))
	}
	if !d.Chart.Trend[4].Target || d.Chart.Trend[0].Target {
		t.Error("only the 2004 point should be the target")
	}
	if len(d.Chart.Histogram) != histogramBins {
		t.Errorf("len(Histogram) = %d, want %d", len(d.Chart.Histogram), histogramBins)
	}
	if d.Chart.Box.Median != 7 {
		t.Errorf("Median = %v, want 7", d.Chart.Box.Median)
	}

	if d.Hottest[0].Year != 2004 || !d.Hottest[0].Selected {
		t.Errorf("Hottest[0] = %+v, want selected 2004", d.Hottest[0])
	}
	if d.Coldest[0].Year != 2000 || d.Coldest[0].Selected {
		t.Errorf("Coldest[0] = %+v, want unselected 2000", d.Coldest[0])
	}
	if d.StdText != "1.1°C" {
		t.Errorf("StdText = %q, want 1.1°C", d.StdText)
	}

	single := comparison(0, 0)
	single.HistoricalStd = math.NaN()
	if got := newDashboard(single).StdText; got != "n/a" {
		t.Errorf("StdText = %q, want n/a", got)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, comparison(3.5, 100)); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "March 1, 2004 was much hotter") {
		t.Errorf("summary = %s", out)
	}
	if !strings.Contains(out, "<li>") {
		t.Error("expected list items")
	}
}
