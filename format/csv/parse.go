package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/shape"
)

// Parse reads CSV and returns one record per data row, keyed by the header.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]hub.Raw, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	data, _, err = shape.Decode(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", opts.SourceName, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	opts.Shape = "table"
	keys := format.HeaderKeys(rows[0])
	records := make([]hub.Raw, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if rec := format.RowRecord(keys, row); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// header line. Spreadsheets saved with an Indonesian locale use semicolons.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
