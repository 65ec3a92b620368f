package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunefetch/dunefetch/internal/export"
	"github.com/dunefetch/dunefetch/internal/export/duckdb"
	"github.com/dunefetch/dunefetch/internal/export/postgres"
	"github.com/dunefetch/dunefetch/internal/storage"
	"github.com/dunefetch/dunefetch/internal/storage/s3"
)

// buildSinks opens every sink enabled in the configuration. The returned
// close func releases database handles and is safe to call on error paths.
func (a *app) buildSinks(ctx context.Context) ([]export.Sink, func(), error) {
	var sinks []export.Sink
	var dbs []*sql.DB
	closeAll := func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	}

	cfg := a.cfg
	if cfg.Export.ParquetPath != "" {
		sinks = append(sinks, &export.ParquetFileSink{Path: cfg.Export.ParquetPath})
	}
	if cfg.Export.Upload {
		store, err := a.objectStore(ctx)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, &export.ObjectStoreSink{Store: store})
	}
	if cfg.Export.PostgresDSN != "" {
		db, err := postgres.Open(ctx, postgres.DBConfig{
			DSN:             cfg.Export.PostgresDSN,
			ApplicationName: cfg.Service.Name,
			MaxConns:        cfg.Export.PostgresMaxConns,
		})
		if err != nil {
			return nil, closeAll, err
		}
		dbs = append(dbs, db)
		sinks = append(sinks, &export.SQLTableSink{DB: db, Table: cfg.Export.Table, SinkName: "postgres"})
	}
	if cfg.Export.DuckDBPath != "" {
		db, err := duckdb.Open(ctx, cfg.Export.DuckDBPath)
		if err != nil {
			return nil, closeAll, err
		}
		dbs = append(dbs, db)
		sinks = append(sinks, &export.SQLTableSink{DB: db, Table: cfg.Export.Table, SinkName: "duckdb"})
	}
	return sinks, closeAll, nil
}

func (a *app) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	if a.opts.Store != nil {
		return a.opts.Store, nil
	}
	store, err := s3.New(ctx, a.cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return store, nil
}
