// Package csv reads and writes school tables exported from spreadsheets.
// Comma, tab and the semicolon layout written by Indonesian-locale
// spreadsheets are all accepted.
package csv

import (
	"bytes"

	"github.com/sarpras-dashboard/sarpras-sync/format"
)

func init() {
	format.Register(&Format{})
}

// Format is the delimited-table plugin.
type Format struct{}

var (
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

func (f *Format) Name() string         { return "csv" }
func (f *Format) Description() string  { return "Delimited school tables (comma, semicolon or tab)" }
func (f *Format) Extensions() []string { return []string{"csv", "tsv"} }

// CanParse accepts content whose header and first data line share the
// delimiter sniffed from the header. JSON, XML and single lines are rejected.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || bytes.IndexByte([]byte("{[<"), peek[0]) >= 0 {
		return false
	}
	header, rest, ok := bytes.Cut(peek, []byte("\n"))
	if !ok {
		return false
	}
	sep := []byte(string(sniffDelimiter(header)))
	if !bytes.Contains(header, sep) {
		return false
	}
	first, _, _ := bytes.Cut(rest, []byte("\n"))
	return bytes.Contains(first, sep)
}
