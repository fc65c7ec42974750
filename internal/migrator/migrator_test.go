package migrator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/mysql/mysqltest"
	"github.com/loykin/lhm/internal/schema"
)

func usersConn() *mysqltest.Conn {
	conn := mysqltest.New()
	conn.SetValues("show tables like 'users'", "users")
	conn.SetRows(ColumnsQuery("users"),
		mysql.Row{"name": "id", "type": "int(11)", "nullable": "NO"},
		mysql.Row{"name": "login", "type": "varchar(255)", "nullable": "NO", "dflt": "guest"},
		mysql.Row{"name": "nick", "type": "varchar(32)", "nullable": "YES"},
		mysql.Row{"name": "legacy", "type": "text", "nullable": "YES"},
	)
	conn.SetValues(PrimaryKeyQuery("users"), "id")
	conn.SetRows(ColumnsQuery("lhmn_users"),
		mysql.Row{"name": "id", "type": "int(11)", "nullable": "NO"},
		mysql.Row{"name": "login", "type": "varchar(255)", "nullable": "NO", "dflt": "guest"},
		mysql.Row{"name": "nickname", "type": "varchar(32)", "nullable": "YES"},
		mysql.Row{"name": "flag", "type": "tinyint(1)", "nullable": "YES"},
	)
	conn.SetValues(PrimaryKeyQuery("lhmn_users"), "id")
	return conn
}

func TestMigrator_Statements(t *testing.T) {
	origin := schema.NewTable("users")
	origin.Add(schema.Column{Name: "nick", Type: "varchar(32)", Nullable: true})

	m := New("users", mysqltest.New(), common.NewNopLogger()).
		Ddl("alter table `lhmn_users` engine=InnoDB").
		AddColumn("flag", "tinyint(1) default 0").
		ChangeColumn("login", "varchar(512) not null").
		RemoveColumn("legacy").
		RenameColumn("nick", "nickname").
		AddIndex([]string{"login", "created_at"}, "").
		AddUniqueIndex([]string{"login(10)"}, "uniq_login").
		RemoveIndex([]string{"email"}, "")

	got, err := m.Statements(origin)
	if err != nil {
		t.Fatalf("Statements() error = %v", err)
	}
	want := []string{
		"alter table `lhmn_users` engine=InnoDB",
		"alter table `lhmn_users` add column `flag` tinyint(1) default 0",
		"alter table `lhmn_users` modify column `login` varchar(512) not null",
		"alter table `lhmn_users` drop `legacy`",
		"alter table `lhmn_users` change column `nick` `nickname` varchar(32)",
		"create index `index_users_on_login_and_created_at` on `lhmn_users` (`login`, `created_at`)",
		"create unique index `uniq_login` on `lhmn_users` (`login`(10))",
		"drop index `index_users_on_email` on `lhmn_users`",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Statements() =\n%v\nwant\n%v", got, want)
	}
	if m.Name() != "lhmn_users" || m.Origin() != "users" {
		t.Errorf("names = %s, %s", m.Origin(), m.Name())
	}
}

func TestMigrator_RenameUnknownColumn(t *testing.T) {
	m := New("users", mysqltest.New(), common.NewNopLogger()).RenameColumn("missing", "other")
	if _, err := m.Statements(schema.NewTable("users")); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Statements() error = %v, want ErrUnknownColumn", err)
	}
}

func TestMigrator_IndexNameTruncated(t *testing.T) {
	m := New("a_rather_long_table_name_for_indexes", mysqltest.New(), common.NewNopLogger()).
		AddIndex([]string{"first_column", "second_column"}, "")
	stmts, err := m.Statements(schema.NewTable("x"))
	if err != nil {
		t.Fatal(err)
	}
	want := "create index `index_a_rather_long_table_name_for_indexes_on_first_column_and_s` on " +
		"`lhmn_a_rather_long_table_name_for_indexes` (`first_column`, `second_column`)"
	if stmts[0] != want {
		t.Errorf("statement = %q", stmts[0])
	}
}

func TestMigrator_Run(t *testing.T) {
	conn := usersConn()
	m := New("users", conn, common.NewNopLogger()).
		AddColumn("flag", "tinyint(1)").
		RemoveColumn("legacy").
		RenameColumn("nick", "nickname").
		Filter("  where login <> 'root'  ")

	migration, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantExec := []string{
		"create table `lhmn_users` like `users`",
		"alter table `lhmn_users` add column `flag` tinyint(1)",
		"alter table `lhmn_users` drop `legacy`",
		"alter table `lhmn_users` change column `nick` `nickname` varchar(32)",
	}
	if got := conn.Executed(); !reflect.DeepEqual(got, wantExec) {
		t.Errorf("executed =\n%v\nwant\n%v", got, wantExec)
	}

	if migration.Origin.Name != "users" || migration.Destination.Name != "lhmn_users" {
		t.Errorf("tables = %s -> %s", migration.Origin.Name, migration.Destination.Name)
	}
	if migration.OrderColumn != "id" {
		t.Errorf("OrderColumn = %s", migration.OrderColumn)
	}
	if migration.Conditions != "where login <> 'root'" {
		t.Errorf("Conditions = %q", migration.Conditions)
	}
	in := migration.Intersection()
	if !reflect.DeepEqual(in.Origin, []string{"id", "login", "nick"}) ||
		!reflect.DeepEqual(in.Destination, []string{"id", "login", "nickname"}) {
		t.Errorf("Intersection() = %+v", in)
	}
	login, _ := migration.Origin.Column("login")
	if login.Nullable || login.Default == nil || *login.Default != "guest" {
		t.Errorf("login column = %+v", login)
	}
}

func TestMigrator_RunOrderBy(t *testing.T) {
	conn := usersConn()
	migration, err := New("users", conn, common.NewNopLogger()).OrderBy("login").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if migration.OrderColumn != "login" {
		t.Errorf("OrderColumn = %s", migration.OrderColumn)
	}
}

func TestMigrator_RunValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*mysqltest.Conn)
		orderBy string
		wantErr error
	}{
		{
			name:    "origin missing",
			setup:   func(c *mysqltest.Conn) { c.SetValues("show tables like 'users'") },
			wantErr: ErrOriginMissing,
		},
		{
			name:    "destination left over",
			setup:   func(c *mysqltest.Conn) { c.SetValues("show tables like 'lhmn_users'", "lhmn_users") },
			wantErr: ErrDestinationExists,
		},
		{
			name:    "unknown order column",
			setup:   func(*mysqltest.Conn) {},
			orderBy: "uuid",
			wantErr: ErrUnknownColumn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := usersConn()
			tt.setup(conn)
			_, err := New("users", conn, common.NewNopLogger()).OrderBy(tt.orderBy).Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if len(conn.Executed()) != 0 {
				t.Errorf("executed %v", conn.Executed())
			}
		})
	}
}

func TestMigrator_RunAlterFailure(t *testing.T) {
	conn := usersConn()
	boom := errors.New("Duplicate column name 'flag'")
	conn.FailOn("alter table `lhmn_users` add column", boom)

	_, err := New("users", conn, common.NewNopLogger()).AddColumn("flag", "int").Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestReadTable_CompositeKey(t *testing.T) {
	conn := mysqltest.New()
	conn.SetRows(ColumnsQuery("memberships"),
		mysql.Row{"name": "user_id", "type": "int(11)", "nullable": "NO"},
		mysql.Row{"name": "group_id", "type": "int(11)", "nullable": "NO"},
	)
	conn.SetValues(PrimaryKeyQuery("memberships"), "user_id", "group_id")

	tbl, err := ReadTable(context.Background(), conn, "memberships")
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if tbl.PrimaryKey != "" {
		t.Errorf("PrimaryKey = %q, want empty for composite key", tbl.PrimaryKey)
	}
	if !reflect.DeepEqual(tbl.ColumnNames(), []string{"user_id", "group_id"}) {
		t.Errorf("ColumnNames() = %v", tbl.ColumnNames())
	}
}
