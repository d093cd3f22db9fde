// Package jsondoc provides the format plugin for JSON and line-delimited
// JSON source documents.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/shape"
)

// Format implements the JSON document format.
type Format struct{}

var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

func (f *Format) Name() string { return "json" }

func (f *Format) Description() string {
	return "JSON documents of any supported shape, or one JSON object per line"
}

func (f *Format) Extensions() []string { return []string{"json", "geojson", "ndjson", "jsonl"} }

// CanParse returns true if the input starts like a JSON value.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(bytes.TrimPrefix(peek, []byte{0xEF, 0xBB, 0xBF}))
	return len(peek) > 0 && (peek[0] == '{' || peek[0] == '[')
}

// Parse decodes the document and flattens it through the shape detectors.
// opts.Shape reports the detector that matched.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]hub.Raw, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", opts.SourceName, err)
	}
	doc, err := shape.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", opts.SourceName, err)
	}
	name, records := shape.Detect(doc)
	opts.Shape = name
	return records, nil
}

// Serialize writes rows as a JSON array.
func (f *Format) Serialize(w io.Writer, rows []map[string]any, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rows)
}

func init() {
	format.Register(&Format{})
}
