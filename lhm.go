// Package lhm changes the schema of a live MySQL table without blocking
// writes. A copy of the table is altered, kept in sync through triggers,
// backfilled in throttled chunks and finally switched in place of the
// original, which is kept as an archive.
package lhm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/lhm/internal/cleanup"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/invoker"
	"github.com/loykin/lhm/internal/migrator"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/progress"
	"github.com/loykin/lhm/internal/schema"
	"github.com/loykin/lhm/internal/store"
	"github.com/loykin/lhm/internal/switcher"
	"github.com/loykin/lhm/internal/throttler"
)

// Re-export commonly used types for public API

// Migrator queues the alterations applied to the destination table.
type Migrator = migrator.Migrator

// Options controls a single run.
type Options = invoker.Options

// Migration describes a run: origin, destination and how rows are copied.
type Migration = schema.Migration

// Throttler paces the backfill.
type Throttler = throttler.Throttler

// ThrottlerFactory builds a throttler from options.
type ThrottlerFactory = throttler.Factory

// TimeThrottler spans StrideSize order column values per chunk and sleeps
// Delay between chunks.
type TimeThrottler = throttler.Time

// NewTimeThrottler returns a time throttler; non-positive values use the defaults.
func NewTimeThrottler(stride int64, delay time.Duration) *TimeThrottler {
	return throttler.NewTime(stride, delay)
}

// Printer receives backfill progress.
type Printer = progress.Printer

// CleanupReport lists leftovers of earlier runs.
type CleanupReport = cleanup.Report

// MySQLConfig describes how to reach MySQL.
type MySQLConfig = mysql.Config

// Logger is the structured logger used by every component.
type Logger = common.Logger

// LogLevel selects logger verbosity.
type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

var (
	// ErrConfiguration means the options could not be resolved, for example
	// when the server cannot do an atomic switch and none was chosen.
	ErrConfiguration = invoker.ErrConfiguration
	// ErrTriggersMissing means the change capture triggers were dropped or
	// altered during the backfill. The switch was not attempted.
	ErrTriggersMissing   = invoker.ErrTriggersMissing
	ErrOriginMissing     = migrator.ErrOriginMissing
	ErrDestinationExists = migrator.ErrDestinationExists
	ErrTableMissing      = switcher.ErrTableMissing
	ErrUnknownThrottler  = throttler.ErrUnknownThrottler
	ErrInvalidStride     = throttler.ErrInvalidStride
)

// Bool returns a pointer to b, for Options.AtomicSwitch.
func Bool(b bool) *bool { return &b }

// Int64 returns a pointer to v, for Options.Start and Options.Limit.
func Int64(v int64) *int64 { return &v }

// NewLogger creates a text logger writing to stdout.
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// NewJSONLogger creates a JSON logger writing to stdout.
func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

// SetLogger replaces the process wide default logger.
func SetLogger(l *Logger) { common.SetDefaultLogger(l) }

// RegisterThrottler makes a throttler available by name in Options.ThrottlerName.
func RegisterThrottler(name string, f ThrottlerFactory) { throttler.Register(name, f) }

// SetDefaultThrottler replaces the throttler used when Options names none.
func SetDefaultThrottler(t Throttler) { throttler.SetDefault(t) }

// OpenMySQL opens a pool for cfg and waits for the server to answer.
func OpenMySQL(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) { return mysql.Open(ctx, cfg) }

// Changer runs schema changes against DB.
type Changer struct {
	DB *sql.DB
	// Logger defaults to the process wide logger.
	Logger *Logger
	// History records runs when set.
	History *Store
}

// Change alters table. define queues the alterations on the migrator; they
// run against the destination table before any trigger is installed. The
// returned migration is nil when the run failed before the destination was
// created.
func (c *Changer) Change(ctx context.Context, table string, define func(m *Migrator), opts Options) (*Migration, error) {
	if c.DB == nil {
		return nil, errors.New("lhm: no database")
	}
	if define == nil {
		return nil, fmt.Errorf("%w: no alterations for %s", ErrConfiguration, table)
	}
	logger := c.Logger
	if logger == nil {
		logger = common.GetLogger()
	}

	conn, err := mysql.Session(ctx, c.DB)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	m := migrator.New(table, conn, logger)
	define(m)

	inv := invoker.New(m, conn, logger)
	if c.History != nil {
		inv.SetJournal(historyJournal{store: c.History})
	}
	err = inv.Run(ctx, opts)
	return inv.Migration(), err
}

// Change alters table using the default logger and no run history.
func Change(ctx context.Context, db *sql.DB, table string, define func(m *Migrator), opts Options) (*Migration, error) {
	return (&Changer{DB: db}).Change(ctx, table, define, opts)
}

// Cleanup reports the tables and triggers earlier runs left in the current
// schema and drops them when run is true.
func Cleanup(ctx context.Context, db *sql.DB, run bool) (CleanupReport, error) {
	conn, err := mysql.Session(ctx, db)
	if err != nil {
		return CleanupReport{}, err
	}
	defer func() { _ = conn.Close() }()
	return cleanup.Run(ctx, conn, run, common.GetLogger())
}

// Store is the run history journal.
type Store = store.Store

// StoreConfig selects the history backend.
type StoreConfig = store.Config

// HistoryRun is one journal entry.
type HistoryRun = store.Run

// OpenStore opens (and initializes) the run history.
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) { return store.Open(ctx, cfg) }
