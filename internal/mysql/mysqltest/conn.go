// Package mysqltest provides an in-memory mysql.Connection that records every
// statement, for tests that care about the SQL a component issues.
package mysqltest

import (
	"context"
	"strings"
	"sync"

	"github.com/loykin/lhm/internal/mysql"
)

type failure struct {
	prefix string
	err    error
}

// Conn records statements and answers queries from canned results.
type Conn struct {
	mu       sync.Mutex
	log      []string
	executed []string
	rows     map[string][]mysql.Row
	values   map[string][]string
	failures []failure
	// Affected is returned as the affected row count of every Execute.
	Affected int64
}

var _ mysql.Connection = (*Conn)(nil)

// New returns an empty fake connection.
func New() *Conn {
	return &Conn{rows: map[string][]mysql.Row{}, values: map[string][]string{}}
}

// SetRows answers query with rows (SelectRows / SelectOne).
func (c *Conn) SetRows(query string, rows ...mysql.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[query] = rows
}

// SetValues answers query with a single column (SelectValues / SelectValue).
// No values makes SelectValue report NULL.
func (c *Conn) SetValues(query string, values ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[query] = values
}

// FailOn makes every statement starting with prefix fail with err.
func (c *Conn) FailOn(prefix string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, failure{prefix: prefix, err: err})
}

// Executed returns the statements passed to Execute, in order.
func (c *Conn) Executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// Log returns every statement and query, in order.
func (c *Conn) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// ExecutedMatching returns executed statements containing substr.
func (c *Conn) ExecutedMatching(substr string) []string {
	var out []string
	for _, s := range c.Executed() {
		if strings.Contains(s, substr) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Conn) record(stmt string, exec bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, stmt)
	if exec {
		c.executed = append(c.executed, stmt)
	}
	for _, f := range c.failures {
		if strings.HasPrefix(stmt, f.prefix) {
			return f.err
		}
	}
	return nil
}

func (c *Conn) Execute(ctx context.Context, stmt string) (int64, error) {
	if err := c.record(stmt, true); err != nil {
		return 0, err
	}
	return c.Affected, ctx.Err()
}

func (c *Conn) SelectRows(_ context.Context, query string) ([]mysql.Row, error) {
	if err := c.record(query, false); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[query], nil
}

func (c *Conn) SelectOne(ctx context.Context, query string) (mysql.Row, error) {
	rows, err := c.SelectRows(ctx, query)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (c *Conn) SelectValues(_ context.Context, query string) ([]string, error) {
	if err := c.record(query, false); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.values[query]...), nil
}

func (c *Conn) SelectValue(ctx context.Context, query string) (string, bool, error) {
	vals, err := c.SelectValues(ctx, query)
	if err != nil || len(vals) == 0 {
		return "", false, err
	}
	return vals[0], true, nil
}
