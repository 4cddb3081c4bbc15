// Package ioformats reads scan inputs and writes scan output.
package ioformats

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyInput    = errors.New("ioformats: no sources found")
	ErrMissingColumn = errors.New("ioformats: csv needs a 'source', 'url' or 'path' header column")
)

// sourceKeys name the CSV column or NDJSON field holding a source.
var sourceKeys = []string{"source", "url", "path"}

// ReadSources reads URLs or file paths from a CSV (with a header) or NDJSON
// file. Unknown extensions are tried as CSV first, then NDJSON.
func ReadSources(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided input
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(f)
	case ".ndjson", ".jsonl":
		return readNDJSON(f)
	}
	if out, err := readCSV(f); err == nil && len(out) > 0 {
		return out, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return readNDJSON(f)
}

func readCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	col := -1
	for _, key := range sourceKeys {
		for i, h := range rows[0] {
			if strings.EqualFold(strings.TrimSpace(h), key) {
				col = i
				break
			}
		}
		if col != -1 {
			break
		}
	}
	if col == -1 {
		return nil, ErrMissingColumn
	}
	var out []string
	for _, row := range rows[1:] {
		if col < len(row) {
			if s := strings.TrimSpace(row[col]); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func readNDJSON(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// Either a bare source or an object carrying one.
		if strings.HasPrefix(line, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(line), &obj); err == nil {
				if s := field(obj); s != "" {
					out = append(out, s)
				}
				continue
			}
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

func field(obj map[string]any) string {
	for _, key := range sourceKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// WriteNDJSON writes items as NDJSON to w.
func WriteNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
