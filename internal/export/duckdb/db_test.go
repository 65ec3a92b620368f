package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunefetch/dunefetch/internal/export"
	"github.com/dunefetch/dunefetch/internal/table"
)

func TestSQLTableSinkWritesIntoDuckDB(t *testing.T) {
	db, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	sink := &export.SQLTableSink{DB: db, Table: "dune_results", SinkName: "duckdb"}
	rows := []map[string]any{
		{"value": int64(42), "label": "x", "tags": []any{"a"}},
		{"value": int64(7), "label": nil, "tags": nil},
	}
	result := export.ResultSet{
		QueryID:     "4175998",
		ExecutionID: "E1",
		FetchedAt:   time.Date(2026, time.February, 19, 10, 0, 0, 0, time.UTC),
		Table:       table.FromRows(rows, []string{"value", "label", "tags"}),
	}
	for i := 0; i < 2; i++ {
		if err := sink.Write(context.Background(), result); err != nil {
			t.Fatalf("Write() #%d error = %v", i, err)
		}
	}

	var count, total int64
	if err := db.QueryRow(`SELECT COUNT(*), CAST(SUM("value") AS BIGINT) FROM "dune_results" WHERE "_execution_id" = $1`, "E1").Scan(&count, &total); err != nil {
		t.Fatalf("query written rows: %v", err)
	}
	if count != 4 || total != 98 {
		t.Fatalf("count/sum = %d/%d", count, total)
	}

	var tags string
	if err := db.QueryRow(`SELECT "tags" FROM "dune_results" WHERE "value" = 42 LIMIT 1`).Scan(&tags); err != nil {
		t.Fatalf("query tags: %v", err)
	}
	if tags != `["a"]` {
		t.Fatalf("tags = %q", tags)
	}
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.duckdb")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
}
