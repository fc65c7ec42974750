// Package invoker runs a schema change end to end: session tuning, the
// destination table, triggers, backfill, trigger verification and the switch.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loykin/lhm/internal/chunker"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/entangler"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
	"github.com/loykin/lhm/internal/switcher"
)

// ErrTriggersMissing is returned when the triggers on the origin table no
// longer match the ones installed for the run. The switch is not attempted.
var ErrTriggersMissing = errors.New("lhm: change capture triggers missing or altered")

// MigrationProducer creates the destination table and describes the run.
type MigrationProducer interface {
	Run(ctx context.Context) (*schema.Migration, error)
}

// Journal records runs. Journal failures are logged and never fail a run.
type Journal interface {
	RunStarted(ctx context.Context, run RunInfo) (int64, error)
	RunFinished(ctx context.Context, id int64, result RunResult) error
}

// RunInfo describes a run that is about to entangle.
type RunInfo struct {
	Origin      string
	Destination string
	Archive     string
	Strategy    string
	StartedAt   time.Time
}

// RunResult describes how a run ended. Err is nil on success.
type RunResult struct {
	Chunks     int64
	Rows       int64
	FinishedAt time.Time
	Err        error
}

// Invoker drives a run.
type Invoker struct {
	producer  MigrationProducer
	conn      mysql.Connection
	logger    *common.Logger
	journal   Journal
	migration *schema.Migration
}

// New returns an invoker. All statements go through conn, which must be a
// single session. logger may be nil.
func New(producer MigrationProducer, conn mysql.Connection, logger *common.Logger) *Invoker {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Invoker{producer: producer, conn: conn, logger: logger.WithComponent("invoker")}
}

// SetJournal enables run history.
func (i *Invoker) SetJournal(j Journal) { i.journal = j }

// Migration returns the descriptor of the last run, or nil.
func (i *Invoker) Migration() *schema.Migration { return i.migration }

// Run performs the schema change.
func (i *Invoker) Run(ctx context.Context, opts Options) error {
	s, err := opts.normalize(ctx, i.conn)
	if err != nil {
		i.logger.Error("lhm run failed", "exception", fmt.Sprintf("%T", err), "message", err.Error())
		return err
	}

	if err := SetSessionLockWaitTimeouts(ctx, i.conn, i.logger); err != nil {
		return err
	}

	migration, err := i.producer.Run(ctx)
	if err != nil {
		return err
	}
	i.migration = migration

	logger := i.logger.WithTable(migration.Origin.Name)
	ch := chunker.New(migration, i.conn, chunker.Options{
		Throttler: s.throttler,
		Start:     s.start,
		Limit:     s.limit,
		Printer:   s.printer,
		Logger:    i.logger,
	})
	ent := entangler.New(migration, i.conn, i.logger)
	sw := switcher.New(s.atomic, migration, i.conn, i.logger)

	journalID := i.started(ctx, migration, sw.Strategy())
	logger.Info("starting", "destination", migration.Destination.Name, "strategy", sw.Strategy())

	err = ent.Run(ctx, func(ctx context.Context) error {
		if err := ch.Prepare(ctx); err != nil {
			return err
		}
		logger.Info("backfill planned", "start", ch.Start(), "limit", ch.Limit(), "chunks", ch.TraversableChunksSize())
		if err := ch.Run(ctx); err != nil {
			return err
		}
		if err := i.verifyTriggers(ctx, ent); err != nil {
			return err
		}
		return sw.Run(ctx)
	})

	chunks, rows := ch.Copied()
	i.finished(ctx, journalID, RunResult{Chunks: chunks, Rows: rows, FinishedAt: time.Now(), Err: err})
	if err != nil {
		logger.Error("lhm run failed", "error", err)
		return err
	}
	logger.Info("lhm run completed", "archive", migration.ArchiveName(), "chunks", chunks, "rows", rows)
	return nil
}

// verifyTriggers compares the lhm triggers present on origin with the ones
// the entangler installed. The like pattern also matches tables whose name
// ends in origin's, so rows are kept only when their table is origin.
func (i *Invoker) verifyTriggers(ctx context.Context, ent *entangler.Entangler) error {
	origin := i.migration.Origin.Name
	rows, err := i.conn.SelectRows(ctx, "show triggers like "+schema.QuoteString("%"+origin))
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	var actual []string
	for _, row := range rows {
		if !strings.EqualFold(row["Table"], origin) {
			continue
		}
		if n := strings.ToLower(row["Trigger"]); strings.HasPrefix(n, constants.TriggerPrefix) {
			actual = append(actual, n)
		}
	}
	expected := make([]string, 0, len(ent.ExpectedTriggers()))
	for _, n := range ent.ExpectedTriggers() {
		expected = append(expected, strings.ToLower(n))
	}
	sort.Strings(actual)
	sort.Strings(expected)

	if strings.Join(actual, ",") != strings.Join(expected, ",") {
		return fmt.Errorf("%w: expected %v, found %v", ErrTriggersMissing, expected, actual)
	}
	return nil
}

func (i *Invoker) started(ctx context.Context, m *schema.Migration, strategy string) int64 {
	if i.journal == nil {
		return 0
	}
	id, err := i.journal.RunStarted(ctx, RunInfo{
		Origin:      m.Origin.Name,
		Destination: m.Destination.Name,
		Archive:     m.ArchiveName(),
		Strategy:    strategy,
		StartedAt:   m.StartedAt,
	})
	if err != nil {
		i.logger.Warn("failed to record run start", "error", err)
	}
	return id
}

func (i *Invoker) finished(ctx context.Context, id int64, result RunResult) {
	if i.journal == nil || id == 0 {
		return
	}
	if err := i.journal.RunFinished(context.WithoutCancel(ctx), id, result); err != nil {
		i.logger.Warn("failed to record run result", "error", err)
	}
}
