package migrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

// ColumnsQuery lists the columns of table in the current schema.
func ColumnsQuery(table string) string {
	return "select column_name as name, column_type as type, is_nullable as nullable, column_default as dflt " +
		"from information_schema.columns where table_schema = database() and table_name = " +
		schema.QuoteString(table) + " order by ordinal_position"
}

// PrimaryKeyQuery lists the primary key columns of table in the current schema.
func PrimaryKeyQuery(table string) string {
	return "select column_name as name from information_schema.key_column_usage " +
		"where table_schema = database() and table_name = " + schema.QuoteString(table) +
		" and constraint_name = 'PRIMARY' order by ordinal_position"
}

// ReadTable loads the column list and primary key of table. The primary key
// is only recorded when it consists of a single column.
func ReadTable(ctx context.Context, conn mysql.Connection, table string) (*schema.Table, error) {
	rows, err := conn.SelectRows(ctx, ColumnsQuery(table))
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrOriginMissing, table)
	}

	t := schema.NewTable(table)
	for _, r := range rows {
		col := schema.Column{
			Name:     r["name"],
			Type:     r["type"],
			Nullable: strings.EqualFold(r["nullable"], "YES"),
		}
		if d, ok := r["dflt"]; ok && d != "" {
			col.Default = &d
		}
		t.Add(col)
	}

	keys, err := conn.SelectValues(ctx, PrimaryKeyQuery(table))
	if err != nil {
		return nil, fmt.Errorf("read primary key of %s: %w", table, err)
	}
	if len(keys) == 1 {
		t.PrimaryKey = keys[0]
	}
	return t, nil
}
