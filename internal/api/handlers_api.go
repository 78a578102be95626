package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/lox/sameday/internal/imagegen"
	"github.com/lox/sameday/internal/models"
)

// CompareResponse is the JSON form of a comparison. Std is null when the
// cohort holds a single year.
type CompareResponse struct {
	Date            string           `json:"date"`
	Avg             float64          `json:"avg"`
	Min             *float64         `json:"min"`
	Max             *float64         `json:"max"`
	HistoricalMean  float64          `json:"historical_mean"`
	HistoricalStd   *float64         `json:"historical_std"`
	HistoricalMin   float64          `json:"historical_min"`
	HistoricalMax   float64          `json:"historical_max"`
	HistoricalCount int              `json:"historical_count"`
	DiffFromMean    float64          `json:"diff_from_mean"`
	Percentile      float64          `json:"percentile"`
	HotRank         int              `json:"hot_rank"`
	ColdRank        int              `json:"cold_rank"`
	Band            string           `json:"band"`
	Cohort          []CohortResponse `json:"cohort"`
}

type CohortResponse struct {
	Year int      `json:"year"`
	Date string   `json:"date"`
	Avg  float64  `json:"avg"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
}

func ptr(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func NewCompareResponse(c *models.Comparison) CompareResponse {
	resp := CompareResponse{
		Date:            c.TargetDate.Format(dateLayout),
		Avg:             c.TargetAvg,
		HistoricalMean:  c.HistoricalMean,
		HistoricalStd:   ptr(c.HistoricalStd),
		HistoricalMin:   c.HistoricalMin,
		HistoricalMax:   c.HistoricalMax,
		HistoricalCount: c.HistoricalCount,
		DiffFromMean:    c.DiffFromMean,
		Percentile:      c.Percentile,
		HotRank:         c.HotRank,
		ColdRank:        c.ColdRank,
		Band:            string(imagegen.BandFor(c.DiffFromMean)),
		Cohort:          make([]CohortResponse, 0, len(c.Cohort)),
	}
	if c.TargetMin.Valid {
		resp.Min = ptr(c.TargetMin.Float64)
	}
	if c.TargetMax.Valid {
		resp.Max = ptr(c.TargetMax.Float64)
	}
	for _, r := range c.Cohort {
		cr := CohortResponse{Year: r.Year, Date: r.Date.Format(dateLayout), Avg: r.AvgTemp.Float64}
		if r.MinTemp.Valid {
			cr.Min = ptr(r.MinTemp.Float64)
		}
		if r.MaxTemp.Valid {
			cr.Max = ptr(r.MaxTemp.Float64)
		}
		resp.Cohort = append(resp.Cohort, cr)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error, date time.Time) {
	status, msg := errorStatus(err, date)
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleAPIDataset(w http.ResponseWriter, r *http.Request) {
	t, uploaded, err := s.loadTable()
	if err != nil {
		writeJSONError(w, err, time.Time{})
		return
	}
	writeJSON(w, http.StatusOK, newDatasetInfo(t, uploaded))
}

func (s *Server) handleAPICompare(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeJSONError(w, err, time.Time{})
		return
	}

	t, _, err := s.loadTable()
	if err != nil {
		writeJSONError(w, err, date)
		return
	}

	c, err := compare(t, date)
	if err != nil {
		writeJSONError(w, err, date)
		return
	}
	writeJSON(w, http.StatusOK, NewCompareResponse(c))
}
