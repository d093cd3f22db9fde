// Package format defines the interface for source document format plugins.
package format

import (
	"io"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

// Format defines the interface that all format plugins must implement.
type Format interface {
	// Name returns the format identifier (e.g., "json", "xlsx", "csv")
	Name() string

	// Description returns a human-readable format description
	Description() string

	// Extensions returns file extensions associated with this format
	Extensions() []string

	// CanParse returns true if this format can parse the given input
	CanParse(peek []byte) bool
}

// Parser is a format that can read a source document into raw records.
type Parser interface {
	Format

	// Parse reads input and returns one raw record per school.
	Parse(r io.Reader, opts *ParseOptions) ([]hub.Raw, error)
}

// Serializer is a format that can write materialized rows to output.
type Serializer interface {
	Format

	// Serialize writes rows to the output.
	Serialize(w io.Writer, rows []map[string]any, opts *SerializeOptions) error
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// SourceName is an identifier for the source (for error messages)
	SourceName string

	// Sheet selects the worksheet of a workbook (default: the first one)
	Sheet string

	// Shape is set by parsers that detect a document shape, so callers can
	// report which detector matched
	Shape string
}

// SerializeOptions contains options for serialization.
type SerializeOptions struct {
	// Columns specifies which columns to include (for tabular formats).
	// Empty means every column found in the rows, sorted.
	Columns []string

	// IncludeHeader includes a header row (for tabular formats)
	IncludeHeader bool

	// Pretty enables pretty-printing (for JSON)
	Pretty bool

	// Sheet names the worksheet written by workbook formats
	Sheet string
}

// NewParseOptions creates ParseOptions with defaults.
func NewParseOptions() *ParseOptions {
	return &ParseOptions{}
}

// NewSerializeOptions creates SerializeOptions with defaults.
func NewSerializeOptions() *SerializeOptions {
	return &SerializeOptions{
		IncludeHeader: true,
		Pretty:        true,
	}
}
