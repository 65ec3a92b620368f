package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

func Render(w io.Writer, t Table, format string) error {
	switch format {
	case "", FormatTable:
		return WriteText(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatCSV:
		return WriteCSV(w, t)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteText prints an aligned grid with a leading row-index column.
func WriteText(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := ""
	for _, column := range t.Columns {
		header += "\t" + textCellEscaper.Replace(column)
	}
	if _, err := fmt.Fprintln(tw, header); err != nil {
		return err
	}
	for index, row := range t.Rows {
		line := strconv.Itoa(index)
		for _, value := range row {
			line += "\t" + textCell(value)
		}
		if _, err := fmt.Fprintln(tw, line); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	return nil
}

// WriteJSON prints the rows as an array of objects whose keys keep the
// table's column order.
func WriteJSON(w io.Writer, t Table) error {
	var raw bytes.Buffer
	raw.WriteByte('[')
	for i := range t.Rows {
		if i > 0 {
			raw.WriteByte(',')
		}
		encoded, err := t.RowJSON(i)
		if err != nil {
			return err
		}
		raw.Write(encoded)
	}
	raw.WriteByte(']')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("indent json: %w", err)
	}
	pretty.WriteByte('\n')
	_, err := w.Write(pretty.Bytes())
	return err
}

// RowJSON encodes one row as a compact JSON object in column order.
func (t Table) RowJSON(index int) ([]byte, error) {
	if index < 0 || index >= len(t.Rows) {
		return nil, fmt.Errorf("row %d out of range", index)
	}
	row := t.Rows[index]
	var raw bytes.Buffer
	raw.WriteByte('{')
	for j, column := range t.Columns {
		if j > 0 {
			raw.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", column, err)
		}
		value, err := json.Marshal(row[j])
		if err != nil {
			return nil, fmt.Errorf("encode value of column %q: %w", column, err)
		}
		raw.Write(key)
		raw.WriteByte(':')
		raw.Write(value)
	}
	raw.WriteByte('}')
	return raw.Bytes(), nil
}

func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, value := range row {
			record[i] = FormatCell(value)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// FormatCell renders a single value for text and csv output. Nested values
// are printed as JSON.
func FormatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case json.Number:
		return typed.String()
	case float64:
		return formatFloat(typed)
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}

// Plain decimal notation up to this magnitude; exponent form beyond it.
const (
	maxPlainFloat = 1e21
	minPlainFloat = 1e-6
)

func formatFloat(v float64) string {
	abs := math.Abs(v)
	if abs >= maxPlainFloat || (abs != 0 && abs < minPlainFloat) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var textCellEscaper = strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`, "\v", `\v`, "\f", `\f`)

// textCell is FormatCell with the control characters that would break the
// tabwriter grid escaped.
func textCell(value any) string {
	return textCellEscaper.Replace(FormatCell(value))
}
