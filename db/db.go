package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var DB *sql.DB

// InitDB opens the shared connection. driver is "postgres" or "sqlite".
func InitDB(driver, dsn string) error {
	conn, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

func GetDB() *sql.DB {
	return DB
}

// Open connects and pings. SQLite is limited to one connection so that
// in-memory databases are shared and writes never hit SQLITE_BUSY.
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	var conn *sql.DB
	var err error
	switch driver {
	case "postgres":
		conn, err = sql.Open("postgres", dsn)
	case "sqlite":
		conn, err = sql.Open("sqlite", dsn)
		if err == nil {
			conn.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	if driver == "sqlite" {
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// ApplySchema creates missing tables and indexes. Safe to run on every boot.
func ApplySchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
