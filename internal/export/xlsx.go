package export

import (
	"fmt"
	"io"
	"iter"

	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the export.
const SheetName = "Sheet1"

// WriteXLSX renders subs as a single-sheet workbook. Rows go through
// excelize's stream writer, which spills to a temporary file instead of
// holding the sheet in memory; the finished workbook is then copied to w.
func WriteXLSX(w io.Writer, cat *catalog.Catalog, subs iter.Seq2[*model.Submission, error]) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	if err := setRow(sw, 1, Header(cat)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for sub, err := range subs {
		if err != nil {
			return rows, err
		}
		if err := setRow(sw, rows+2, Record(cat, sub)); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++
	}

	if err := sw.Flush(); err != nil {
		return rows, fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}

func setRow(sw *excelize.StreamWriter, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return sw.SetRow(cell, cells)
}
