package schema

import (
	"fmt"
	"strings"
)

// Column is a single column of a table. Type is the raw column_type string, e.g. "varchar(255)".
type Column struct {
	Name     string
	Type     string
	Nullable bool
	// Default is the column default as reported by the server; nil when there is none.
	Default *string
}

// Definition renders the column the way "alter table ... change column" expects it.
func (c Column) Definition() string {
	def := c.Type
	if !c.Nullable {
		def += " not null"
	}
	if c.Default != nil {
		def += " default " + QuoteString(*c.Default)
	}
	return def
}

// Table describes a table by name and its columns in ordinal order.
type Table struct {
	Name       string
	PrimaryKey string
	columns    []Column
	index      map[string]int
}

// NewTable returns an empty table description.
func NewTable(name string) *Table {
	return &Table{Name: name, index: map[string]int{}}
}

// AddColumn appends a nullable column, replacing an existing column with the same name.
func (t *Table) AddColumn(name, typ string) {
	t.Add(Column{Name: name, Type: typ, Nullable: true})
}

// Add appends col, replacing an existing column with the same name.
func (t *Table) Add(col Column) {
	if t.index == nil {
		t.index = map[string]int{}
	}
	if i, ok := t.index[col.Name]; ok {
		t.columns[i] = col
		return
	}
	t.index[col.Name] = len(t.columns)
	t.columns = append(t.columns, col)
}

// Columns returns the columns in ordinal order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	out := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		out = append(out, c.Name)
	}
	return out
}

// HasColumn reports whether the table has a column named name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// DestinationName is the name of the shadow table built for t.
func (t *Table) DestinationName() string {
	return DestinationName(t.Name)
}

// QuoteIdent backtick-quotes a MySQL identifier.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteString single-quotes a MySQL string literal.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// JoinQuoted quotes and comma-joins names.
func JoinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Typed qualifies and comma-joins names, e.g. "NEW.`a`, NEW.`b`".
func Typed(qualifier string, names []string) string {
	typed := make([]string, len(names))
	for i, n := range names {
		typed[i] = fmt.Sprintf("%s.%s", qualifier, QuoteIdent(n))
	}
	return strings.Join(typed, ", ")
}
