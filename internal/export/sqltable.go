package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dunefetch/dunefetch/internal/table"
)

const ExecutionIDColumn = "_execution_id"

const (
	columnBigInt  = "BIGINT"
	columnDouble  = "DOUBLE PRECISION"
	columnBoolean = "BOOLEAN"
	columnText    = "TEXT"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLTableSink appends result rows to a table reachable through database/sql.
// Statements use $n placeholders, which both pgx and duckdb accept.
type SQLTableSink struct {
	DB       *sql.DB
	Table    string
	SinkName string
}

func (s *SQLTableSink) Name() string {
	if s.SinkName != "" {
		return s.SinkName
	}
	return "sql"
}

func (s *SQLTableSink) Write(ctx context.Context, result ResultSet) error {
	if s.DB == nil {
		return fmt.Errorf("database is required")
	}
	if !tableNamePattern.MatchString(s.Table) {
		return fmt.Errorf("invalid table name: %q", s.Table)
	}
	if len(result.Table.Columns) == 0 {
		return nil
	}
	for _, column := range result.Table.Columns {
		if column == ExecutionIDColumn {
			return fmt.Errorf("result column %q collides with the provenance column", column)
		}
	}

	types := InferColumnTypes(result.Table)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createTableSQL(s.Table, result.Table.Columns, types)); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(s.Table, result.Table.Columns))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", s.Table, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range result.Table.Rows {
		args := make([]any, 0, len(row)+1)
		args = append(args, result.ExecutionID)
		for j, value := range row {
			args = append(args, columnValue(value, types[j]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i, s.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InferColumnTypes picks a SQL type per column from the non-null values.
// Mixed integer and float columns widen to DOUBLE PRECISION; anything else
// mixed falls back to TEXT.
func InferColumnTypes(t table.Table) []string {
	types := make([]string, len(t.Columns))
	for j := range t.Columns {
		kind := ""
		for _, row := range t.Rows {
			valueKind := kindOf(row[j])
			if valueKind == "" {
				continue
			}
			switch {
			case kind == "" || kind == valueKind:
				kind = valueKind
			case isNumericKind(kind) && isNumericKind(valueKind):
				kind = columnDouble
			default:
				kind = columnText
			}
		}
		if kind == "" {
			kind = columnText
		}
		types[j] = kind
	}
	return types
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return ""
	case int64:
		return columnBigInt
	case float64:
		return columnDouble
	case json.Number:
		// Integer outside the int64 range; TEXT keeps every digit.
		return columnText
	case bool:
		return columnBoolean
	default:
		return columnText
	}
}

func isNumericKind(kind string) bool {
	return kind == columnBigInt || kind == columnDouble
}

func columnValue(value any, columnType string) any {
	if value == nil {
		return nil
	}
	switch columnType {
	case columnDouble:
		if i, ok := value.(int64); ok {
			return float64(i)
		}
		return value
	case columnText:
		switch typed := value.(type) {
		case string:
			return typed
		case map[string]any, []any:
			encoded, err := json.Marshal(typed)
			if err != nil {
				return table.FormatCell(typed)
			}
			return string(encoded)
		default:
			return table.FormatCell(typed)
		}
	default:
		return value
	}
}

func createTableSQL(name string, columns, types []string) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, quoteIdent(ExecutionIDColumn)+" "+columnText+" NOT NULL")
	for i, column := range columns {
		defs = append(defs, quoteIdent(column)+" "+types[i])
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteQualified(name), strings.Join(defs, ", "))
}

func insertSQL(name string, columns []string) string {
	quoted := make([]string, 0, len(columns)+1)
	placeholders := make([]string, 0, len(columns)+1)
	quoted = append(quoted, quoteIdent(ExecutionIDColumn))
	placeholders = append(placeholders, "$1")
	for i, column := range columns {
		quoted = append(quoted, quoteIdent(column))
		placeholders = append(placeholders, "$"+strconv.Itoa(i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteQualified(name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quoteIdent(part)
	}
	return strings.Join(parts, ".")
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
