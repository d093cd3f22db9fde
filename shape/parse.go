package shape

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyDocument is returned for input with no content.
var ErrEmptyDocument = errors.New("empty document")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// maxLineSize bounds a single line of line-delimited JSON.
const maxLineSize = 16 << 20

// Decode detects the text encoding, strips any BOM, and returns UTF-8 bytes
// along with the detected encoding name.
func Decode(data []byte) ([]byte, string, error) {
	switch {
	case len(data) == 0:
		return data, "utf-8", nil
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := xunicode.BOMOverride(xunicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, "", fmt.Errorf("decoding UTF-16: %w", err)
		}
		name := "utf-16le"
		if bytes.HasPrefix(data, bomUTF16BE) {
			name = "utf-16be"
		}
		return out, name, nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	default:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("decoding latin-1: %w", err)
		}
		return out, "latin-1", nil
	}
}

// Parse decodes a source document. Numbers are kept as json.Number so
// NPSN-like values never lose digits. When the input is not a single JSON
// value it is retried as line-delimited JSON, yielding a []any of objects.
func Parse(data []byte) (any, error) {
	data, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	doc, err := decodeSingle(data)
	if err == nil {
		return doc, nil
	}

	lines, lerr := decodeLines(data)
	if lerr == nil {
		return lines, nil
	}
	return nil, fmt.Errorf("parsing JSON: %w", err)
}

func decodeSingle(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return doc, nil
}

// decodeLines parses newline-delimited JSON objects. Blank lines are
// ignored; any malformed or non-object line rejects the whole document.
func decodeLines(data []byte) ([]any, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []any
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if obj == nil {
			return nil, fmt.Errorf("line %d: not an object", lineNo)
		}
		out = append(out, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, errors.New("not line-delimited JSON")
	}
	return out, nil
}
