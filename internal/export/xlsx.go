// Package export renders synthesized time entries as spreadsheets for
// review before they are submitted.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"calsync/internal/models"
)

const sheetName = "Entries"

var headers = []string{"Date", "Start", "End", "Hours", "Description", "Project", "Task"}

// WriteDrafts writes one row per draft, rendered in loc, followed by a
// total row, and streams the workbook to w.
func WriteDrafts(w io.Writer, drafts []models.TimeEntryDraft, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle)

	var total float64
	row := 2
	for _, d := range drafts {
		start := d.Start.In(loc)
		end := d.End.In(loc)
		hours := d.Duration().Hours()
		total += hours

		values := []any{
			start.Format(time.DateOnly),
			start.Format("15:04"),
			end.Format("15:04"),
			hours,
			d.Description,
			d.ProjectID,
			d.TaskID,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		row++
	}

	totalLabel, _ := excelize.CoordinatesToCellName(3, row)
	totalCell, _ := excelize.CoordinatesToCellName(4, row)
	_ = f.SetCellValue(sheetName, totalLabel, "Total")
	_ = f.SetCellValue(sheetName, totalCell, total)
	boldStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheetName, totalLabel, totalCell, boldStyle)

	_ = f.SetColWidth(sheetName, "A", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 60)
	_ = f.SetColWidth(sheetName, "F", "G", 28)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
