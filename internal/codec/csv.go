package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hengadev/serializers/primitive"
)

// CSVRenderer writes a list of mappings as a header row taken from the first
// mapping followed by one row per mapping. A single mapping is one row.
// Nested values are written as compact JSON.
type CSVRenderer struct{}

func (CSVRenderer) Render(w io.Writer, data any, _ Options) error {
	rows, ok := data.([]any)
	if !ok {
		rows = []any{data}
	}
	cw := csv.NewWriter(w)
	var header []string
	for i, item := range rows {
		row, ok := item.(*primitive.Map)
		if !ok {
			return fmt.Errorf("csv: row %d must be a mapping, got %T", i, item)
		}
		if header == nil {
			header = row.Keys()
			if err := cw.Write(header); err != nil {
				return err
			}
		}
		record := make([]string, len(header))
		for j, key := range header {
			value, _ := row.Get(key)
			cell, err := csvCell(value)
			if err != nil {
				return err
			}
			record[j] = cell
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvCell(v any) (string, error) {
	switch v.(type) {
	case *primitive.Map, []any:
		var buf bytes.Buffer
		if err := writeJSON(&buf, v, false); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return primitive.Text(v), nil
}

// CSVParser reads a header row and returns one mapping of text per record.
type CSVParser struct{}

func (CSVParser) Parse(r io.Reader) (any, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	rows := []any{}
	if len(records) == 0 {
		return rows, nil
	}
	header := records[0]
	for _, record := range records[1:] {
		row := primitive.NewMap()
		for i, key := range header {
			row.Set(key, record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
