// Package xlsx provides the format plugin for Excel workbooks, matching the
// dashboard's spreadsheet import and export.
package xlsx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

// DefaultSheet is the worksheet name used when writing.
const DefaultSheet = "Sarpras"

// zipMagic starts every OOXML package.
var zipMagic = []byte("PK\x03\x04")

// Format implements the XLSX format.
type Format struct{}

var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

func (f *Format) Name() string        { return "xlsx" }
func (f *Format) Description() string { return "Excel workbook, header row followed by one school per row" }
func (f *Format) Extensions() []string {
	return []string{"xlsx", "xlsm"}
}

// CanParse returns true for zip containers.
func (f *Format) CanParse(peek []byte) bool {
	return bytes.HasPrefix(peek, zipMagic)
}

// Parse reads one worksheet (opts.Sheet, or the first) into records keyed
// by the header row.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]hub.Raw, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}

	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", opts.SourceName, err)
	}
	defer wb.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = wb.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", opts.SourceName)
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, opts.SourceName, err)
	}
	opts.Shape = "table"
	if len(rows) == 0 {
		return nil, nil
	}

	keys := format.HeaderKeys(rows[0])
	records := make([]hub.Raw, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if rec := format.RowRecord(keys, row); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Serialize writes rows into a single-sheet workbook with a bold, frozen
// header row.
func (f *Format) Serialize(w io.Writer, rows []map[string]any, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}
	columns := opts.Columns
	if len(columns) == 0 {
		columns = format.ColumnsOf(rows)
	}
	sheet := opts.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	first := 1
	if opts.IncludeHeader {
		style, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("creating header style: %w", err)
		}
		for i, col := range columns {
			if err := setCell(wb, sheet, i+1, 1, col); err != nil {
				return err
			}
		}
		if len(columns) > 0 {
			last, err := excelize.CoordinatesToCellName(len(columns), 1)
			if err != nil {
				return err
			}
			if err := wb.SetCellStyle(sheet, "A1", last, style); err != nil {
				return fmt.Errorf("styling header: %w", err)
			}
		}
		if err := wb.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freezing header: %w", err)
		}
		first = 2
	}

	for r, row := range rows {
		for c, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			if err := setCell(wb, sheet, c+1, first+r, cellValue(v)); err != nil {
				return err
			}
		}
	}

	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// cellValue keeps numbers numeric so spreadsheet sums work.
func cellValue(v any) any {
	switch v.(type) {
	case float64, float32, int, int64, int32, bool:
		return v
	default:
		return format.CellText(v)
	}
}

func setCell(wb *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := wb.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("setting cell %s: %w", cell, err)
	}
	return nil
}

func init() {
	format.Register(&Format{})
}
