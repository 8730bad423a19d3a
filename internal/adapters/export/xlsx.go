// Package export renders run summaries as spreadsheets for operators.
package export

import (
	"fmt"
	"io"

	"github.com/okian/talentsync/internal/domain/types"
	"github.com/xuri/excelize/v2"
)

const (
	SheetResults = "Results"
	SheetCounts  = "Counts"
)

var resultHeader = []any{"Submission ID", "Email", "Status", "Talent Application ID", "Error"}

// WriteSummaryXLSX writes a workbook with one row per result on the Results
// sheet and the per-status breakdown on the Counts sheet.
func WriteSummaryXLSX(w io.Writer, summary types.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	// A new workbook starts with Sheet1; rename it instead of adding.
	if err := f.SetSheetName(f.GetSheetName(0), SheetResults); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, SheetResults, 1, resultHeader); err != nil {
		return err
	}
	for i, r := range summary.Results {
		row := []any{r.SubmissionID, r.Email, string(r.Status), r.TalentApplicationID, r.Error}
		if err := writeRow(f, SheetResults, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SheetResults, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(SheetCounts); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := writeRow(f, SheetCounts, 1, []any{"Status", "Count"}); err != nil {
		return err
	}
	counts := summary.Counts()
	for i, st := range types.AllStatuses {
		if err := writeRow(f, SheetCounts, i+2, []any{string(st), counts[st]}); err != nil {
			return err
		}
	}
	total := len(types.AllStatuses) + 2
	if err := writeRow(f, SheetCounts, total, []any{"processed", summary.Processed}); err != nil {
		return err
	}
	if err := writeRow(f, SheetCounts, total+1, []any{"timestamp", summary.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
