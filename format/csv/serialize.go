package csv

import (
	"encoding/csv"
	"io"

	"github.com/sarpras-dashboard/sarpras-sync/format"
)

// Serialize writes rows as CSV.
func (f *Format) Serialize(w io.Writer, rows []map[string]any, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns = format.ColumnsOf(rows)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if opts.IncludeHeader {
		if err := writer.Write(columns); err != nil {
			return err
		}
	}

	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = format.CellText(row[col])
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
