package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/lhm/internal/constants"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// ConvertTimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertTimeFromStorage converts PostgreSQL time storage to time.Time
func (p *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	if t, ok := val.(*time.Time); ok && t != nil {
		return t.UTC()
	}
	if t, ok := val.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// GetEnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) GetEnsureStatements(runs string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, origin TEXT NOT NULL, destination TEXT NOT NULL, archive TEXT NOT NULL, strategy TEXT NOT NULL, status TEXT NOT NULL, error TEXT NULL, chunks BIGINT NOT NULL DEFAULT 0, rows_copied BIGINT NOT NULL DEFAULT 0, started_at TIMESTAMPTZ NOT NULL, finished_at TIMESTAMPTZ NULL)", runs),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_origin_idx ON %s (origin)", runs, runs),
	}
}

// GetDriverName returns the driver name for logging
func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
