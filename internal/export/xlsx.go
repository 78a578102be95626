package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/lox/sameday/internal/models"
)

const sheetName = "Records"

var header = []any{"date", "station", "avg_temp", "min_temp", "max_temp", "year", "month_day"}

func cell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// WriteXLSX writes the table to a single-sheet workbook at path. Null
// temperatures are left as empty cells.
func WriteXLSX(path string, t *models.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}

	for i, r := range Rows(t) {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Date, r.Station, cell(r.AvgTemp), cell(r.MinTemp), cell(r.MaxTemp), r.Year, r.MonthDay}
		if err := f.SetSheetRow(sheetName, addr, &row); err != nil {
			return fmt.Errorf("export: row %d: %w", i+1, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("export: freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: write xlsx %s: %w", path, err)
	}
	return nil
}
