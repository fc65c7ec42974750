package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loykin/lhm/internal/common"
)

// Row is a single result row keyed by column name. NULL reads as "".
type Row map[string]string

// Connection is the statement surface the migration components need.
// All statements of one run must go through the same session, since
// lock wait timeouts, table locks and autocommit are session scoped.
type Connection interface {
	// Execute runs a statement and returns the number of affected rows.
	Execute(ctx context.Context, stmt string) (int64, error)
	// SelectRows returns every row of query.
	SelectRows(ctx context.Context, query string) ([]Row, error)
	// SelectOne returns the first row of query, or nil when there is none.
	SelectOne(ctx context.Context, query string) (Row, error)
	// SelectValues returns the first column of every row.
	SelectValues(ctx context.Context, query string) ([]string, error)
	// SelectValue returns the first column of the first row; valid is false for NULL or no rows.
	SelectValue(ctx context.Context, query string) (value string, valid bool, err error)
}

// Querier is satisfied by *sql.Conn, *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements Connection on top of a database/sql session.
type Conn struct {
	q      Querier
	closer func() error
	logger *common.Logger
}

// NewConn wraps q. The caller keeps ownership of q.
func NewConn(q Querier) *Conn {
	return &Conn{q: q, logger: common.GetLogger().WithComponent("mysql")}
}

// Session pins a single connection out of db's pool so session variables
// and table locks survive across statements. Close returns it to the pool.
func Session(ctx context.Context, db *sql.DB) (*Conn, error) {
	sc, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	c := NewConn(sc)
	c.closer = sc.Close
	return c, nil
}

// Close releases the pinned session, if any.
func (c *Conn) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Conn) Execute(ctx context.Context, stmt string) (int64, error) {
	c.logger.Debug("execute", "sql", stmt)
	res, err := c.q.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("%w\n%s", err, stmt)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Conn) SelectRows(ctx context.Context, query string) ([]Row, error) {
	c.logger.Debug("select", "sql", query)
	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w\n%s", err, query)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *Conn) SelectOne(ctx context.Context, query string) (Row, error) {
	rows, err := c.SelectRows(ctx, query)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (c *Conn) SelectValues(ctx context.Context, query string) ([]string, error) {
	c.logger.Debug("select", "sql", query)
	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w\n%s", err, query)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.New("query returned no columns")
	}
	var out []string
	for rows.Next() {
		vals, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		out = append(out, vals[0].String)
	}
	return out, rows.Err()
}

func (c *Conn) SelectValue(ctx context.Context, query string) (string, bool, error) {
	c.logger.Debug("select", "sql", query)
	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return "", false, fmt.Errorf("%w\n%s", err, query)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", false, err
	}
	if !rows.Next() {
		return "", false, rows.Err()
	}
	vals, err := scanRow(rows, len(cols))
	if err != nil {
		return "", false, err
	}
	if len(vals) == 0 {
		return "", false, nil
	}
	return vals[0].String, vals[0].Valid, nil
}

func scanRow(rows *sql.Rows, n int) ([]sql.NullString, error) {
	vals := make([]sql.NullString, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
