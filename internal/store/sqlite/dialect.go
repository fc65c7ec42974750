package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns SQLite-style placeholders (?)
func (s *Dialect) GetPlaceholder(int) string {
	return "?"
}

// ConvertTimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (s *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConvertTimeFromStorage parses the stored RFC3339Nano string
func (s *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	switch v := val.(type) {
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	case []byte:
		t, _ := time.Parse(time.RFC3339Nano, string(v))
		return t
	case time.Time:
		return v.UTC()
	}
	return time.Time{}
}

// Connect establishes a connection to SQLite with connection pooling
func (s *Dialect) Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// SQLite-specific configuration (SQLite doesn't support multiple writers)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// GetEnsureStatements returns SQLite-specific table creation statements
func (s *Dialect) GetEnsureStatements(runs string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, origin TEXT NOT NULL, destination TEXT NOT NULL, archive TEXT NOT NULL, strategy TEXT NOT NULL, status TEXT NOT NULL, error TEXT NULL, chunks INTEGER NOT NULL DEFAULT 0, rows_copied INTEGER NOT NULL DEFAULT 0, started_at TEXT NOT NULL, finished_at TEXT NULL)", runs),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_origin_idx ON %s (origin)", runs, runs),
	}
}

// GetDriverName returns the driver name for logging
func (s *Dialect) GetDriverName() string {
	return "sqlite"
}
