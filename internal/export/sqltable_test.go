package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dunefetch/dunefetch/internal/table"
)

func TestSQLTableSinkCreatesTableAndInsertsRows(t *testing.T) {
	db, mock := newSQLMock(t)
	sink := &SQLTableSink{DB: db, Table: "dune_results", SinkName: "postgres"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "dune_results" ("_execution_id" TEXT NOT NULL, "value" DOUBLE PRECISION, "label" TEXT)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prepared := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "dune_results" ("_execution_id", "value", "label") VALUES ($1, $2, $3)`))
	prepared.ExpectExec().WithArgs("E1", float64(42), "x").WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WithArgs("E1", 1.5, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := sink.Write(context.Background(), sampleResultSet()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if sink.Name() != "postgres" {
		t.Fatalf("Name() = %q", sink.Name())
	}
	assertSQLMock(t, mock)
}

func TestSQLTableSinkRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	sink := &SQLTableSink{DB: db, Table: "analytics.dune_results"}
	insertErr := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "analytics"."dune_results"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prepared := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "analytics"."dune_results"`))
	prepared.ExpectExec().WithArgs("E1", float64(42), "x").WillReturnError(insertErr)
	mock.ExpectRollback()

	err := sink.Write(context.Background(), sampleResultSet())
	if !errors.Is(err, insertErr) {
		t.Fatalf("Write() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSQLTableSinkSkipsResultWithoutColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	sink := &SQLTableSink{DB: db, Table: "dune_results"}

	if err := sink.Write(context.Background(), ResultSet{QueryID: "1", ExecutionID: "E1"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSQLTableSinkValidatesInput(t *testing.T) {
	db, _ := newSQLMock(t)

	if err := (&SQLTableSink{DB: db, Table: `x"; DROP TABLE y; --`}).Write(context.Background(), sampleResultSet()); err == nil {
		t.Fatal("expected invalid table name error")
	}
	if err := (&SQLTableSink{Table: "dune_results"}).Write(context.Background(), sampleResultSet()); err == nil {
		t.Fatal("expected missing database error")
	}

	colliding := ResultSet{
		QueryID:     "1",
		ExecutionID: "E1",
		Table:       table.FromRows([]map[string]any{{ExecutionIDColumn: "x"}}, nil),
	}
	if err := (&SQLTableSink{DB: db, Table: "dune_results"}).Write(context.Background(), colliding); err == nil {
		t.Fatal("expected provenance column collision error")
	}
}

func TestInferColumnTypes(t *testing.T) {
	rows := []map[string]any{
		{"i": int64(1), "f": 1.5, "mixed": int64(1), "b": true, "s": "x", "nested": map[string]any{"k": "v"}, "empty": nil, "clash": int64(1)},
		{"i": int64(2), "f": nil, "mixed": 2.5, "b": false, "s": "y", "nested": []any{int64(1)}, "empty": nil, "clash": "one"},
	}
	tbl := table.FromRows(rows, []string{"i", "f", "mixed", "b", "s", "nested", "empty", "clash"})

	got := InferColumnTypes(tbl)
	want := []string{"BIGINT", "DOUBLE PRECISION", "DOUBLE PRECISION", "BOOLEAN", "TEXT", "TEXT", "TEXT", "TEXT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("InferColumnTypes() = %#v, want %#v", got, want)
	}
}

func TestSQLTableSinkStoresLargeIntegersAsExactText(t *testing.T) {
	const digits = "123456789012345678901234567"
	db, mock := newSQLMock(t)
	sink := &SQLTableSink{DB: db, Table: "transfers"}
	result := ResultSet{
		QueryID:     "1",
		ExecutionID: "E1",
		Table: table.FromRows([]map[string]any{
			{"amount_raw": int64(5)},
			{"amount_raw": json.Number(digits)},
		}, nil),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "transfers" ("_execution_id" TEXT NOT NULL, "amount_raw" TEXT)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prepared := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "transfers" ("_execution_id", "amount_raw") VALUES ($1, $2)`))
	prepared.ExpectExec().WithArgs("E1", "5").WillReturnResult(sqlmock.NewResult(0, 1))
	prepared.ExpectExec().WithArgs("E1", digits).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := sink.Write(context.Background(), result); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestColumnValueStoresNestedValuesAsJSON(t *testing.T) {
	if got := columnValue(map[string]any{"k": int64(1)}, columnText); got != `{"k":1}` {
		t.Fatalf("columnValue() = %#v", got)
	}
	if got := columnValue(int64(7), columnText); got != "7" {
		t.Fatalf("columnValue() = %#v", got)
	}
	if got := columnValue(int64(7), columnDouble); got != float64(7) {
		t.Fatalf("columnValue() = %#v", got)
	}
	if got := columnValue(nil, columnBigInt); got != nil {
		t.Fatalf("columnValue() = %#v", got)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
