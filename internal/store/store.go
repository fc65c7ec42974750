// Package store keeps a journal of lhm runs in SQLite or PostgreSQL.
//
// The journal is informational. The migration protocol never reads it;
// trigger and table existence in MySQL remain the source of truth.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/store/postgresql"
	"github.com/loykin/lhm/internal/store/sqlite"
	"github.com/loykin/lhm/internal/util"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrUnsupportedDriver = errors.New("store: unsupported driver")
	ErrInvalidTableName  = errors.New("store: invalid table name")
	ErrRunNotFound       = errors.New("store: run not found")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Dialect isolates the backend specific SQL.
type Dialect interface {
	GetPlaceholder(index int) string
	ConvertTimeToStorage(t time.Time) interface{}
	ConvertTimeFromStorage(val interface{}) time.Time
	Connect(ctx context.Context, dsn string) (*sql.DB, error)
	GetEnsureStatements(table string) []string
	GetDriverName() string
}

// Run is one journal entry.
type Run struct {
	ID          int64
	Origin      string
	Destination string
	Archive     string
	Strategy    string
	Status      string
	Error       string
	Chunks      int64
	Rows        int64
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Store writes and reads the journal.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  *common.Logger
}

func normalizeDriver(driver string) string {
	switch util.TrimAndLower(driver) {
	case "postgres", "postgresql", "pg":
		return DriverPostgresql
	case "", "sqlite", "sqlite3":
		return DriverSqlite
	default:
		return util.TrimAndLower(driver)
	}
}

// Open connects to the configured backend and creates the journal table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	table := util.TrimWithDefault(cfg.Table, constants.DefaultHistoryTable)
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	var (
		dialect Dialect
		dsn     string
	)
	switch normalizeDriver(cfg.Driver) {
	case DriverSqlite:
		dialect, dsn = sqlite.NewDialect(), cfg.SQLite.DSN()
	case DriverPostgresql:
		dialect, dsn = postgresql.NewDialect(), cfg.Postgres.BuildDSN()
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres requires dsn or host")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := dialect.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := New(db, dialect, table)
	if err := s.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("history store ready", "table", table)
	return s, nil
}

// New wraps an open database. table must already be validated.
func New(db *sql.DB, dialect Dialect, table string) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		table:   table,
		logger:  common.GetLogger().WithStore(dialect.GetDriverName()),
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ensure creates the journal table if it is missing.
func (s *Store) Ensure(ctx context.Context) error {
	for i, q := range s.dialect.GetEnsureStatements(s.table) {
		s.logger.Debug("executing schema creation statement", "index", i+1, "sql", q)
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create history schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) placeholders(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = s.dialect.GetPlaceholder(i + 1)
	}
	return out
}

// Begin records a running run and returns its id.
func (s *Store) Begin(ctx context.Context, run Run) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	q := fmt.Sprintf("INSERT INTO %s(origin, destination, archive, strategy, status, started_at) VALUES(%s,%s,%s,%s,%s,%s) RETURNING id",
		append([]interface{}{s.table}, s.placeholders(6)...)...)

	var id int64
	err := s.db.QueryRowContext(ctx, q, run.Origin, run.Destination, run.Archive, run.Strategy,
		StatusRunning, s.dialect.ConvertTimeToStorage(run.StartedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start for %s: %w", run.Origin, err)
	}
	s.logger.Debug("run recorded", "id", id, "origin", run.Origin)
	return id, nil
}

// Finish marks run id completed, or failed when runErr is not nil.
func (s *Store) Finish(ctx context.Context, id int64, chunks, rows int64, runErr error, finishedAt time.Time) error {
	status := StatusCompleted
	var msg interface{}
	if runErr != nil {
		status = StatusFailed
		msg = common.MaskSensitiveData(runErr.Error())
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	q := fmt.Sprintf("UPDATE %s SET status = %s, error = %s, chunks = %s, rows_copied = %s, finished_at = %s WHERE id = %s",
		append([]interface{}{s.table}, s.placeholders(6)...)...)

	res, err := s.db.ExecContext(ctx, q, status, msg, chunks, rows, s.dialect.ConvertTimeToStorage(finishedAt), id)
	if err != nil {
		return fmt.Errorf("failed to record run result for id %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return nil
}

// List returns the newest runs first. origin filters by table when not empty;
// limit <= 0 uses the default.
func (s *Store) List(ctx context.Context, origin string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = constants.DefaultHistoryListMax
	}
	cols := "id, origin, destination, archive, strategy, status, error, chunks, rows_copied, started_at, finished_at"
	var (
		q    string
		args []interface{}
	)
	if o := strings.TrimSpace(origin); o != "" {
		q = fmt.Sprintf("SELECT %s FROM %s WHERE origin = %s ORDER BY id DESC LIMIT %s",
			cols, s.table, s.dialect.GetPlaceholder(1), s.dialect.GetPlaceholder(2))
		args = []interface{}{o, limit}
	} else {
		q = fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT %s", cols, s.table, s.dialect.GetPlaceholder(1))
		args = []interface{}{limit}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			errMsg            sql.NullString
			started, finished interface{}
		)
		if err := rows.Scan(&r.ID, &r.Origin, &r.Destination, &r.Archive, &r.Strategy, &r.Status,
			&errMsg, &r.Chunks, &r.Rows, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Error = errMsg.String
		r.StartedAt = s.dialect.ConvertTimeFromStorage(started)
		if finished != nil {
			t := s.dialect.ConvertTimeFromStorage(finished)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}
