package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

// Format names an export encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ContentType returns the MIME type stored alongside the export.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// EncodeCSV writes a header row of batch.Columns followed by one line per row.
// Missing values are empty cells and list values are JSON arrays.
func EncodeCSV(rows []batch.Flat) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	cols := batch.Columns()
	if err := w.Write(cols); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(cols))
	for i, row := range rows {
		for j, col := range cols {
			cell, err := csvCell(row[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, col, err)
			}
			record[j] = cell
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	case []string, []any, map[string]any:
		// Rows reloaded from a store decode lists as []any; both render
		// as JSON arrays.
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(val), nil
	}
}

// EncodeJSON writes a JSON array of objects whose keys follow batch.Columns.
func EncodeJSON(rows []batch.Flat) ([]byte, error) {
	var buf bytes.Buffer
	cols := batch.Columns()
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  {")
		for j, col := range cols {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(col)
			val, err := json.Marshal(row[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	if len(rows) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}
