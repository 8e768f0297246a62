package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"listing-harvester/core/record"
	"listing-harvester/core/utils"
)

// EncodeJSON writes v as indented JSON.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// DecodeJSON reads one JSON document into v.
func DecodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

// Columns returns lead (in order) followed by every other field name found
// in rows, sorted.
func Columns(rows []record.Fields, lead []string) []string {
	seen := make(map[string]struct{})
	cols := make([]string, 0, len(lead))
	for _, c := range lead {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}

	var rest []string
	for _, row := range rows {
		for name := range row {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

// EncodeCSV writes rows with a header. Missing and nil values are empty cells.
func EncodeCSV(w io.Writer, rows []record.Fields, lead []string) error {
	cols := Columns(rows, lead)
	cw := csv.NewWriter(w)

	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	line := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			line[i] = FormatValue(row[c])
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// FormatValue renders a field value as flat text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return utils.ToString(x)
		}
		return string(data)
	default:
		return utils.ToString(x)
	}
}

// RecordRows flattens raw records into rows with the key under keyColumn.
func RecordRows(records []record.RawRecord, keyColumn string) []record.Fields {
	rows := make([]record.Fields, len(records))
	for i, r := range records {
		row := r.Fields.Clone()
		if keyColumn != "" {
			if _, ok := row[keyColumn]; !ok {
				row[keyColumn] = string(r.Key)
			}
		}
		rows[i] = row
	}
	return rows
}

// UnifiedRows returns the merged field sets of records.
func UnifiedRows(records []record.UnifiedRecord) []record.Fields {
	rows := make([]record.Fields, len(records))
	for i, r := range records {
		rows[i] = r.Fields
	}
	return rows
}

func encodeCSVBytes(rows []record.Fields, lead []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, rows, lead); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSONBytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
