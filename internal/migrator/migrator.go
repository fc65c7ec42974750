// Package migrator creates the destination table, applies the requested
// alterations to it and produces the migration descriptor the rest of a run
// works from.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

var (
	ErrOriginMissing     = errors.New("migrator: origin table does not exist")
	ErrDestinationExists = errors.New("migrator: destination table already exists, run cleanup first")
	ErrUnknownColumn     = errors.New("migrator: unknown column")
)

// Migrator queues alterations for one origin table.
type Migrator struct {
	origin      string
	destination string
	orderColumn string
	conditions  string
	renames     map[string]string
	ops         []op
	conn        mysql.Connection
	logger      *common.Logger
}

// op renders a statement once the origin table is known.
type op func(origin *schema.Table) (string, error)

// New returns a migrator for table. logger may be nil.
func New(table string, conn mysql.Connection, logger *common.Logger) *Migrator {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Migrator{
		origin:      table,
		destination: schema.DestinationName(table),
		renames:     map[string]string{},
		conn:        conn,
		logger:      logger.WithComponent("migrator").WithTable(table),
	}
}

// Name is the destination table the alterations apply to.
func (m *Migrator) Name() string { return m.destination }

// Origin is the table being changed.
func (m *Migrator) Origin() string { return m.origin }

// Statements renders the queued alterations against origin.
func (m *Migrator) Statements(origin *schema.Table) ([]string, error) {
	out := make([]string, 0, len(m.ops))
	for _, o := range m.ops {
		stmt, err := o(origin)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// Ddl queues a raw statement. It should address the table returned by Name.
func (m *Migrator) Ddl(stmt string) *Migrator {
	return m.queue(stmt)
}

// AddColumn queues "alter table <dest> add column <name> <definition>".
func (m *Migrator) AddColumn(name, definition string) *Migrator {
	return m.queue(fmt.Sprintf("alter table %s add column %s %s",
		schema.QuoteIdent(m.destination), schema.QuoteIdent(name), strings.TrimSpace(definition)))
}

// ChangeColumn queues a column redefinition.
func (m *Migrator) ChangeColumn(name, definition string) *Migrator {
	return m.queue(fmt.Sprintf("alter table %s modify column %s %s",
		schema.QuoteIdent(m.destination), schema.QuoteIdent(name), strings.TrimSpace(definition)))
}

// RemoveColumn queues a column drop.
func (m *Migrator) RemoveColumn(name string) *Migrator {
	return m.queue(fmt.Sprintf("alter table %s drop %s", schema.QuoteIdent(m.destination), schema.QuoteIdent(name)))
}

// RenameColumn queues a rename that keeps the column definition. The values
// of old are copied into renamed.
func (m *Migrator) RenameColumn(old, renamed string) *Migrator {
	m.renames[old] = renamed
	m.ops = append(m.ops, func(origin *schema.Table) (string, error) {
		col, ok := origin.Column(old)
		if !ok {
			return "", fmt.Errorf("%w: %s.%s", ErrUnknownColumn, origin.Name, old)
		}
		return fmt.Sprintf("alter table %s change column %s %s %s",
			schema.QuoteIdent(m.destination), schema.QuoteIdent(old), schema.QuoteIdent(renamed), col.Definition()), nil
	})
	return m
}

// AddIndex queues a non-unique index on columns. An empty name is derived
// from the origin table and the columns.
func (m *Migrator) AddIndex(columns []string, name string) *Migrator {
	return m.addIndex(false, columns, name)
}

// AddUniqueIndex queues a unique index on columns.
func (m *Migrator) AddUniqueIndex(columns []string, name string) *Migrator {
	return m.addIndex(true, columns, name)
}

func (m *Migrator) addIndex(unique bool, columns []string, name string) *Migrator {
	kind := "index"
	if unique {
		kind = "unique index"
	}
	return m.queue(fmt.Sprintf("create %s %s on %s (%s)",
		kind, schema.QuoteIdent(m.indexName(columns, name)), schema.QuoteIdent(m.destination), indexColumns(columns)))
}

// RemoveIndex queues an index drop. An empty name is derived as in AddIndex.
func (m *Migrator) RemoveIndex(columns []string, name string) *Migrator {
	return m.queue(fmt.Sprintf("drop index %s on %s",
		schema.QuoteIdent(m.indexName(columns, name)), schema.QuoteIdent(m.destination)))
}

// Filter restricts the rows copied by the chunker, e.g. "where deleted_at is null"
// or "inner join accounts on accounts.id = users.account_id".
func (m *Migrator) Filter(conditions string) *Migrator {
	m.conditions = strings.TrimSpace(conditions)
	return m
}

// OrderBy overrides the column chunks are ranged over.
func (m *Migrator) OrderBy(column string) *Migrator {
	m.orderColumn = strings.TrimSpace(column)
	return m
}

func (m *Migrator) queue(stmt string) *Migrator {
	m.ops = append(m.ops, func(*schema.Table) (string, error) { return stmt, nil })
	return m
}

func (m *Migrator) indexName(columns []string, name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		// drop a length prefix such as "title(10)"
		if j := strings.IndexByte(c, '('); j > 0 {
			c = c[:j]
		}
		parts[i] = strings.TrimSpace(c)
	}
	return truncateIdent(fmt.Sprintf("index_%s_on_%s", m.origin, strings.Join(parts, "_and_")))
}

func indexColumns(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if j := strings.IndexByte(c, '('); j > 0 {
			out[i] = schema.QuoteIdent(c[:j]) + c[j:]
			continue
		}
		out[i] = schema.QuoteIdent(c)
	}
	return strings.Join(out, ", ")
}

func truncateIdent(s string) string {
	if len(s) > constants.MaxIdentifierLength {
		return s[:constants.MaxIdentifierLength]
	}
	return s
}

// Run validates the tables, creates the destination, applies the queued
// alterations and returns the descriptor.
func (m *Migrator) Run(ctx context.Context) (*schema.Migration, error) {
	ok, err := mysql.TableExists(ctx, m.conn, m.origin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOriginMissing, m.origin)
	}
	ok, err = mysql.TableExists(ctx, m.conn, m.destination)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, m.destination)
	}

	origin, err := ReadTable(ctx, m.conn, m.origin)
	if err != nil {
		return nil, err
	}
	order := orderColumn(origin, m.orderColumn)
	if !origin.HasColumn(order) {
		return nil, fmt.Errorf("%w: order column %s.%s", ErrUnknownColumn, m.origin, order)
	}
	stmts, err := m.Statements(origin)
	if err != nil {
		return nil, err
	}

	create := fmt.Sprintf("create table %s like %s", schema.QuoteIdent(m.destination), schema.QuoteIdent(m.origin))
	if _, err := m.conn.Execute(ctx, create); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := m.conn.Execute(ctx, stmt); err != nil {
			return nil, fmt.Errorf("alter destination: %w", err)
		}
	}
	m.logger.Info("destination prepared", "destination", m.destination, "alterations", len(stmts))

	dest, err := ReadTable(ctx, m.conn, m.destination)
	if err != nil {
		return nil, err
	}
	migration := schema.NewMigration(origin, dest, order)
	migration.Conditions = m.conditions
	for k, v := range m.renames {
		migration.Renames[k] = v
	}
	return migration, nil
}

func orderColumn(origin *schema.Table, explicit string) string {
	switch {
	case explicit != "":
		return explicit
	case origin.PrimaryKey != "":
		return origin.PrimaryKey
	default:
		return constants.DefaultOrderColumn
	}
}
