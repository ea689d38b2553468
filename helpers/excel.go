package helpers

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/schema"
)

// ============================================================================
// EXCEL HELPER — Reads one worksheet of an .xlsx workbook
// ============================================================================

// ReadExcelRows returns the header row and data rows of a worksheet.
// An empty sheet name selects the first sheet of the workbook.
func ReadExcelRows(path, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("sheet %q must have a header row and at least one data row", sheet)
	}
	return rows[0], rows[1:], nil
}

// ReadExcel reads a worksheet into Records. The schema is discovered from
// the sheet itself and returned for reuse.
func ReadExcel(path, sheet string, opts ...Options) ([]engine.Record, *schema.Config, error) {
	headers, rows, err := ReadExcelRows(path, sheet)
	if err != nil {
		return nil, nil, err
	}
	sch, err := schema.Discover(headers, rows, schema.DiscoverOptions{Source: "Excel"})
	if err != nil {
		return nil, nil, fmt.Errorf("schema discovery failed: %w", err)
	}
	return FromRows(headers, rows, *sch, pickOptions(opts)), sch, nil
}
