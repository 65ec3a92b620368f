package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DefaultApplicationName = "dunefetch"
	pingTimeout            = 5 * time.Second
)

// DBConfig sizes the handle used by the postgres result sink. A fetch run
// writes through a single transaction, so MaxConns stays small.
type DBConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// Open connects to the sink database and verifies it with a ping. The
// session is tagged with an application_name unless the DSN sets one.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	name := cfg.ApplicationName
	if name == "" {
		name = DefaultApplicationName
	}
	dsn, err := withApplicationName(cfg.DSN, name)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres sink db: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres sink db: %w", err)
	}
	return db, nil
}

// withApplicationName adds application_name to a URL or keyword/value DSN.
// An explicit application_name in the DSN wins.
func withApplicationName(dsn, name string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		query := u.Query()
		if query.Get("application_name") != "" {
			return dsn, nil
		}
		query.Set("application_name", name)
		u.RawQuery = query.Encode()
		return u.String(), nil
	}
	for _, field := range strings.Fields(dsn) {
		if strings.HasPrefix(field, "application_name=") {
			return dsn, nil
		}
	}
	return strings.TrimSpace(dsn) + " application_name=" + name, nil
}
