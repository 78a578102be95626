package export

import (
	"database/sql"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/lox/sameday/internal/models"
)

// Row is the columnar layout of one cleaned record. Pointer temperatures
// become optional columns, nil for nulls.
type Row struct {
	Date     string   `parquet:"date"`
	Station  string   `parquet:"station"`
	AvgTemp  *float64 `parquet:"avg_temp"`
	MinTemp  *float64 `parquet:"min_temp"`
	MaxTemp  *float64 `parquet:"max_temp"`
	Year     int32    `parquet:"year"`
	MonthDay string   `parquet:"month_day"`
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Rows converts a table into export rows, keeping file order.
func Rows(t *models.Table) []Row {
	rows := make([]Row, 0, t.Len())
	for _, r := range t.Records {
		rows = append(rows, Row{
			Date:     r.Date.Format("2006-01-02"),
			Station:  r.Station,
			AvgTemp:  nullable(r.AvgTemp),
			MinTemp:  nullable(r.MinTemp),
			MaxTemp:  nullable(r.MaxTemp),
			Year:     int32(r.Year),
			MonthDay: r.Key.String(),
		})
	}
	return rows
}

// WriteParquet writes the table to a Parquet file at path.
func WriteParquet(path string, t *models.Table) error {
	if err := parquet.WriteFile(path, Rows(t)); err != nil {
		return fmt.Errorf("export: write parquet %s: %w", path, err)
	}
	return nil
}
