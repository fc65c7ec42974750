package schema

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTable_AddColumn(t *testing.T) {
	tbl := NewTable("users")
	tbl.AddColumn("id", "int(11)")
	tbl.AddColumn("name", "varchar(255)")
	tbl.AddColumn("id", "bigint(20)")

	if got := tbl.ColumnNames(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Fatalf("ColumnNames() = %v", got)
	}
	c, ok := tbl.Column("id")
	if !ok || c.Type != "bigint(20)" {
		t.Errorf("Column(id) = %+v, %v", c, ok)
	}
	if tbl.HasColumn("missing") {
		t.Error("HasColumn(missing) = true")
	}
}

func TestNames(t *testing.T) {
	if got := DestinationName("users"); got != "lhmn_users" {
		t.Errorf("DestinationName() = %q", got)
	}
	if got := TriggerName(EventInsert, "users"); got != "lhmt_ins_users" {
		t.Errorf("TriggerName() = %q", got)
	}

	at := time.Date(2013, 7, 10, 12, 30, 45, 123*int(time.Millisecond), time.UTC)
	if got := ArchiveName("users", at); got != "lhma_2013_07_10_12_30_45_123_users" {
		t.Errorf("ArchiveName() = %q", got)
	}

	long := strings.Repeat("x", 70)
	if got := DestinationName(long); len(got) != 64 {
		t.Errorf("DestinationName(long) has length %d, want 64", len(got))
	}
	if got := TriggerName(EventDelete, long); len(got) != 64 || !strings.HasPrefix(got, "lhmt_del_") {
		t.Errorf("TriggerName(long) = %q", got)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ident", QuoteIdent("users"), "`users`"},
		{"ident with backtick", QuoteIdent("we`ird"), "`we``ird`"},
		{"string", QuoteString("%users"), "'%users'"},
		{"string with quote", QuoteString("o'brien"), `'o\'brien'`},
		{"join", JoinQuoted([]string{"a", "b"}), "`a`, `b`"},
		{"typed", Typed("NEW", []string{"a", "b"}), "NEW.`a`, NEW.`b`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMigration_OrderColumnDefaults(t *testing.T) {
	origin := NewTable("users")
	dest := NewTable("lhmn_users")

	if m := NewMigration(origin, dest, ""); m.OrderColumn != "id" {
		t.Errorf("OrderColumn = %q, want id", m.OrderColumn)
	}
	origin.PrimaryKey = "user_id"
	if m := NewMigration(origin, dest, ""); m.OrderColumn != "user_id" {
		t.Errorf("OrderColumn = %q, want user_id", m.OrderColumn)
	}
	if m := NewMigration(origin, dest, "weird_id"); m.OrderColumn != "weird_id" {
		t.Errorf("OrderColumn = %q, want weird_id", m.OrderColumn)
	}
}

func TestMigration_Intersection(t *testing.T) {
	origin := NewTable("users")
	origin.AddColumn("id", "int")
	origin.AddColumn("name", "varchar(255)")
	origin.AddColumn("legacy", "text")
	origin.AddColumn("nick", "varchar(32)")

	dest := NewTable("lhmn_users")
	dest.AddColumn("id", "int")
	dest.AddColumn("name", "varchar(255)")
	dest.AddColumn("handle", "varchar(32)")
	dest.AddColumn("added", "int")

	m := NewMigration(origin, dest, "")
	m.Renames["nick"] = "handle"

	in := m.Intersection()
	if !reflect.DeepEqual(in.Origin, []string{"id", "name", "nick"}) {
		t.Errorf("Origin = %v", in.Origin)
	}
	if !reflect.DeepEqual(in.Destination, []string{"id", "name", "handle"}) {
		t.Errorf("Destination = %v", in.Destination)
	}
}

func TestMigration_Triggers(t *testing.T) {
	m := NewMigration(NewTable("users"), NewTable("lhmn_users"), "")
	got := m.Triggers()
	want := []Trigger{
		{Name: "lhmt_ins_users", Event: EventInsert, Subject: "users"},
		{Name: "lhmt_upd_users", Event: EventUpdate, Subject: "users"},
		{Name: "lhmt_del_users", Event: EventDelete, Subject: "users"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Triggers() = %+v", got)
	}
	if EventUpdate.SQL() != "update" {
		t.Errorf("SQL() = %q", EventUpdate.SQL())
	}
}

func TestColumn_Definition(t *testing.T) {
	zero := "0"
	quoted := "it's"
	tests := []struct {
		col  Column
		want string
	}{
		{Column{Name: "a", Type: "int(11)", Nullable: true}, "int(11)"},
		{Column{Name: "a", Type: "int(11)"}, "int(11) not null"},
		{Column{Name: "a", Type: "int(11)", Default: &zero}, "int(11) not null default '0'"},
		{Column{Name: "a", Type: "varchar(8)", Nullable: true, Default: &quoted}, `varchar(8) default 'it\'s'`},
	}
	for _, tt := range tests {
		if got := tt.col.Definition(); got != tt.want {
			t.Errorf("Definition() = %q, want %q", got, tt.want)
		}
	}
}
