// Package entangler keeps the destination table in sync with live writes to
// the origin table while the backfill runs, using one trigger per DML event.
package entangler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/guard"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

// ErrTriggerConflict is returned when the server refuses a trigger because another
// trigger already occupies its name or its timing/event slot.
var ErrTriggerConflict = errors.New("entangler: conflicting trigger on origin table")

// Entangler owns the lifecycle of the change capture triggers.
type Entangler struct {
	migration *schema.Migration
	conn      mysql.Connection
	logger    *common.Logger
}

// New returns an entangler for migration. logger may be nil.
func New(migration *schema.Migration, conn mysql.Connection, logger *common.Logger) *Entangler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Entangler{
		migration: migration,
		conn:      conn,
		logger:    logger.WithComponent("entangler").WithTable(migration.Origin.Name),
	}
}

// ExpectedTriggers returns the names of the triggers Run installs, sorted.
func (e *Entangler) ExpectedTriggers() []string {
	names := make([]string, 0, len(schema.Events))
	for _, tr := range e.migration.Triggers() {
		names = append(names, tr.Name)
	}
	sort.Strings(names)
	return names
}

// Entangle returns the statements that install the triggers, each preceded by
// a drop of any leftover trigger of the same name.
func (e *Entangler) Entangle() []string {
	var stmts []string
	for _, tr := range e.migration.Triggers() {
		stmts = append(stmts, dropTrigger(tr.Name), e.createTrigger(tr))
	}
	return stmts
}

// Untangle returns the statements that remove the triggers.
func (e *Entangler) Untangle() []string {
	var stmts []string
	for _, tr := range e.migration.Triggers() {
		stmts = append(stmts, dropTrigger(tr.Name))
	}
	return stmts
}

// Run installs the triggers, runs fn and removes the triggers again on every
// exit path. Triggers are only removed if this run created them.
func (e *Entangler) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return guard.Run(ctx, e.logger, func(ctx context.Context, g *guard.Guard) error {
		if err := e.install(ctx, g); err != nil {
			return err
		}
		e.logger.Info("triggers installed", "triggers", e.ExpectedTriggers())
		return fn(ctx)
	})
}

func (e *Entangler) install(ctx context.Context, g *guard.Guard) error {
	for _, tr := range e.migration.Triggers() {
		if _, err := e.conn.Execute(ctx, dropTrigger(tr.Name)); err != nil {
			return fmt.Errorf("drop leftover trigger %s: %w", tr.Name, err)
		}
		if _, err := e.conn.Execute(ctx, e.createTrigger(tr)); err != nil {
			if mysql.IsErrorCode(err, mysql.ErNotSupportedYet, mysql.ErTriggerAlreadyExists) {
				err = errors.Join(ErrTriggerConflict, err)
			}
			return fmt.Errorf("create trigger %s: %w", tr.Name, err)
		}
		name := tr.Name
		g.Defer("drop trigger "+name, func(ctx context.Context) error {
			_, err := e.conn.Execute(ctx, dropTrigger(name))
			if err == nil {
				e.logger.Debug("trigger dropped", "trigger", name)
			}
			return err
		})
	}
	return nil
}

func (e *Entangler) createTrigger(tr schema.Trigger) string {
	origin := schema.QuoteIdent(e.migration.Origin.Name)
	dest := e.migration.Destination.Name
	head := fmt.Sprintf("create trigger %s after %s on %s for each row",
		schema.QuoteIdent(tr.Name), tr.Event.SQL(), origin)

	if tr.Event == schema.EventDelete {
		order := e.migration.OrderColumn
		destOrder := order
		if renamed, ok := e.migration.Renames[order]; ok {
			destOrder = renamed
		}
		return strings.Join([]string{
			head,
			fmt.Sprintf("delete ignore from %s where %s.%s = OLD.%s",
				schema.QuoteIdent(dest), schema.QuoteIdent(dest), schema.QuoteIdent(destOrder), schema.QuoteIdent(order)),
			constants.StatementTag,
		}, " ")
	}

	in := e.migration.Intersection()
	return strings.Join([]string{
		head,
		fmt.Sprintf("replace into %s (%s) values (%s)",
			schema.QuoteIdent(dest), schema.JoinQuoted(in.Destination), schema.Typed("NEW", in.Origin)),
		constants.StatementTag,
	}, " ")
}

func dropTrigger(name string) string {
	return fmt.Sprintf("drop trigger if exists %s", schema.QuoteIdent(name))
}
