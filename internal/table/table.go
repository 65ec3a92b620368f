package table

import (
	"encoding/json"
	"sort"
	"strings"
)

// Table is a materialized result set. Rows are aligned with Columns; a
// column missing from a source row holds nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// FromRows builds a Table from decoded JSON rows. Columns listed in
// columnOrder come first, in that order; columns only discovered in the rows
// follow in order of first appearance, ties within a row broken by name.
// Integral json.Number values become int64 and fractional ones float64;
// integers too large for int64 stay json.Number.
func FromRows[R ~map[string]any](rows []R, columnOrder []string) Table {
	columns := make([]string, 0, len(columnOrder))
	seen := make(map[string]struct{}, len(columnOrder))
	for _, name := range columnOrder {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		columns = append(columns, name)
	}
	for _, row := range rows {
		var discovered []string
		for name := range row {
			if _, ok := seen[name]; !ok {
				discovered = append(discovered, name)
			}
		}
		sort.Strings(discovered)
		for _, name := range discovered {
			seen[name] = struct{}{}
			columns = append(columns, name)
		}
	}

	out := Table{Columns: columns, Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, name := range columns {
			values[i] = normalizeValue(row[name])
		}
		out.Rows = append(out.Rows, values)
	}
	return out
}

func (t Table) Len() int {
	return len(t.Rows)
}

func (t Table) ColumnIndex(name string) int {
	for i, column := range t.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

func (t Table) Column(name string) ([]any, bool) {
	index := t.ColumnIndex(name)
	if index < 0 {
		return nil, false
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[index]
	}
	return values, true
}

func (t Table) Value(row int, column string) (any, bool) {
	index := t.ColumnIndex(column)
	if index < 0 || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[row][index], true
}

// Records returns the rows as column-name maps, the shape the API delivered.
func (t Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for i, column := range t.Columns {
			record[column] = row[i]
		}
		records = append(records, record)
	}
	return records
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case json.Number:
		return normalizeNumber(typed)
	case map[string]any:
		normalized := make(map[string]any, len(typed))
		for key, item := range typed {
			normalized[key] = normalizeValue(item)
		}
		return normalized
	case []any:
		normalized := make([]any, len(typed))
		for i, item := range typed {
			normalized[i] = normalizeValue(item)
		}
		return normalized
	default:
		return typed
	}
}

// normalizeNumber keeps integer literals outside the int64 range, such as
// uint256 token amounts, as json.Number so no digit is lost.
func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		return n
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n
}
