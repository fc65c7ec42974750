package invoker

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/mysql/mysqltest"
	"github.com/loykin/lhm/internal/schema"
	"github.com/loykin/lhm/internal/throttler"
)

const archive = "lhma_2024_01_02_03_04_05_006_origin"

type producer struct {
	migration *schema.Migration
	err       error
	calls     int
}

func (p *producer) Run(context.Context) (*schema.Migration, error) {
	p.calls++
	return p.migration, p.err
}

func newProducer() *producer {
	origin := schema.NewTable("origin")
	origin.AddColumn("id", "int(11)")
	origin.AddColumn("secret", "varchar(255)")
	dest := schema.NewTable("lhmn_origin")
	dest.AddColumn("id", "int(11)")
	dest.AddColumn("secret", "varchar(255)")
	m := schema.NewMigration(origin, dest, "")
	m.StartedAt = time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	return &producer{migration: m}
}

func newConn(version string) *mysqltest.Conn {
	conn := mysqltest.New()
	conn.SetValues("select version()", version)
	conn.SetRows("show global variables like 'innodb_lock_wait_timeout'",
		mysql.Row{"Variable_name": "innodb_lock_wait_timeout", "Value": "50"})
	conn.SetRows("show global variables like 'lock_wait_timeout'",
		mysql.Row{"Variable_name": "lock_wait_timeout", "Value": "31536000"})
	conn.SetValues("show tables like 'origin'", "origin")
	conn.SetValues("show tables like 'lhmn_origin'", "lhmn_origin")
	conn.SetRows("show triggers like '%origin'", triggerRows("origin", "lhmt_ins_origin", "lhmt_upd_origin", "lhmt_del_origin", "audit_origin")...)
	return conn
}

// triggerRows builds "show triggers" rows for table.
func triggerRows(table string, names ...string) []mysql.Row {
	rows := make([]mysql.Row, 0, len(names))
	for _, n := range names {
		rows = append(rows, mysql.Row{"Trigger": n, "Event": "INSERT", "Table": table, "Timing": "AFTER"})
	}
	return rows
}

func int64p(v int64) *int64 { return &v }
func boolp(v bool) *bool    { return &v }

func options() Options {
	return Options{Throttler: throttler.NewTime(2, 0), Start: int64p(1), Limit: int64p(4)}
}

func TestInvoker_RunAtomic(t *testing.T) {
	conn := newConn("8.0.35")
	p := newProducer()
	inv := New(p, conn, common.NewNopLogger())

	if err := inv.Run(context.Background(), options()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{
		"set session innodb_lock_wait_timeout=60",
		"drop trigger if exists `lhmt_ins_origin`",
		"create trigger `lhmt_ins_origin` after insert on `origin` for each row replace into `lhmn_origin` (`id`, `secret`) values (NEW.`id`, NEW.`secret`) /* large hadron migration */",
		"drop trigger if exists `lhmt_upd_origin`",
		"create trigger `lhmt_upd_origin` after update on `origin` for each row replace into `lhmn_origin` (`id`, `secret`) values (NEW.`id`, NEW.`secret`) /* large hadron migration */",
		"drop trigger if exists `lhmt_del_origin`",
		"create trigger `lhmt_del_origin` after delete on `origin` for each row delete ignore from `lhmn_origin` where `lhmn_origin`.`id` = OLD.`id` /* large hadron migration */",
		"insert ignore into `lhmn_origin` (`id`, `secret`) select origin.`id`, origin.`secret` from `origin` where origin.`id` between 1 and 2",
		"insert ignore into `lhmn_origin` (`id`, `secret`) select origin.`id`, origin.`secret` from `origin` where origin.`id` between 3 and 4",
		"rename table `origin` to `" + archive + "`, `lhmn_origin` to `origin`",
		"drop trigger if exists `lhmt_del_origin`",
		"drop trigger if exists `lhmt_upd_origin`",
		"drop trigger if exists `lhmt_ins_origin`",
	}
	if got := conn.Executed(); !reflect.DeepEqual(got, want) {
		t.Errorf("executed =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if inv.Migration() != p.migration {
		t.Error("Migration() does not return the produced descriptor")
	}
}

func TestInvoker_RunLockedWhenForced(t *testing.T) {
	conn := newConn("5.5.40")
	opts := options()
	opts.AtomicSwitch = boolp(false)

	if err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(conn.ExecutedMatching("rename table")) != 0 {
		t.Error("atomic rename used although locked switch was forced")
	}
	if len(conn.ExecutedMatching("lock table `origin` write, `lhmn_origin` write")) != 1 {
		t.Errorf("locked switch not used: %v", conn.Executed())
	}
	for _, q := range conn.Log() {
		if q == "select version()" {
			t.Error("version read although the strategy was explicit")
		}
	}
}

func TestInvoker_RunAtomicForcedOnOldServer(t *testing.T) {
	conn := newConn("5.1.73")
	opts := options()
	opts.AtomicSwitch = boolp(true)

	if err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(conn.ExecutedMatching("rename table")) != 1 {
		t.Errorf("atomic switch not used: %v", conn.Executed())
	}
}

func TestInvoker_RequiresExplicitStrategyOnOldServer(t *testing.T) {
	var buf bytes.Buffer
	conn := newConn("5.6.11-log")
	p := newProducer()

	err := New(p, conn, common.NewLoggerTo(&buf, common.LogLevelError)).Run(context.Background(), options())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run() error = %v, want ErrConfiguration", err)
	}
	if p.calls != 0 || len(conn.Executed()) != 0 {
		t.Errorf("run proceeded past normalization: %v", conn.Executed())
	}
	out := buf.String()
	if !strings.Contains(out, "lhm run failed") || !strings.Contains(out, "exception=") || !strings.Contains(out, "5.6.11-log") {
		t.Errorf("normalization failure not logged: %s", out)
	}
}

func TestInvoker_ThrottlerResolution(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
		chunks  int
	}{
		{
			name:   "named throttler",
			opts:   Options{ThrottlerName: "time", ThrottlerOptions: map[string]interface{}{"stride": 1, "delay": "0s"}, Start: int64p(1), Limit: int64p(4)},
			chunks: 4,
		},
		{
			name:    "unknown throttler",
			opts:    Options{ThrottlerName: "replica_lag"},
			wantErr: ErrConfiguration,
		},
		{
			name:    "bad throttler options",
			opts:    Options{ThrottlerName: "time", ThrottlerOptions: map[string]interface{}{"strid": 1}},
			wantErr: ErrConfiguration,
		},
		{
			name:   "process default",
			opts:   Options{Start: int64p(1), Limit: int64p(4)},
			chunks: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newConn("8.0.35")
			err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := len(conn.ExecutedMatching("insert ignore")); got != tt.chunks {
				t.Errorf("copied %d chunks, want %d", got, tt.chunks)
			}
		})
	}
}

func TestInvoker_TriggerDriftAbortsBeforeSwitch(t *testing.T) {
	tests := []struct {
		name     string
		triggers []string
	}{
		{"trigger dropped", []string{"lhmt_ins_origin", "lhmt_del_origin"}},
		{"foreign lhm trigger", []string{"lhmt_ins_origin", "lhmt_upd_origin", "lhmt_del_origin", "lhmt_ins_origin_2"}},
		{"no triggers", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newConn("8.0.35")
			conn.SetRows("show triggers like '%origin'", triggerRows("origin", tt.triggers...)...)

			err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), options())
			if !errors.Is(err, ErrTriggersMissing) {
				t.Fatalf("Run() error = %v, want ErrTriggersMissing", err)
			}
			if len(conn.ExecutedMatching("rename")) != 0 || len(conn.ExecutedMatching("lock table")) != 0 {
				t.Errorf("switch attempted after drift: %v", conn.Executed())
			}
			stmts := conn.Executed()
			if tail := stmts[len(stmts)-3:]; !strings.HasPrefix(tail[0], "drop trigger") || !strings.HasPrefix(tail[2], "drop trigger") {
				t.Errorf("triggers not removed after drift: %v", tail)
			}
		})
	}
}

func TestInvoker_TriggerNamesCompareCaseInsensitively(t *testing.T) {
	conn := newConn("8.0.35")
	conn.SetRows("show triggers like '%origin'", triggerRows("origin", "LHMT_UPD_ORIGIN", "lhmt_ins_origin", "Lhmt_Del_Origin")...)

	if err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), options()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestInvoker_IgnoresTriggersOfSimilarlyNamedTables(t *testing.T) {
	conn := newConn("8.0.35")
	rows := triggerRows("origin", "lhmt_ins_origin", "lhmt_upd_origin", "lhmt_del_origin")
	rows = append(rows, triggerRows("foo_origin", "lhmt_ins_foo_origin", "lhmt_upd_foo_origin", "lhmt_del_foo_origin")...)
	conn.SetRows("show triggers like '%origin'", rows...)

	if err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), options()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(conn.ExecutedMatching("rename table")) != 1 {
		t.Errorf("switch not executed: %v", conn.Executed())
	}
}

func TestInvoker_ProducerFailure(t *testing.T) {
	conn := newConn("8.0.35")
	p := newProducer()
	p.err = errors.New("destination exists")

	err := New(p, conn, common.NewNopLogger()).Run(context.Background(), options())
	if !errors.Is(err, p.err) {
		t.Fatalf("Run() error = %v", err)
	}
	if len(conn.ExecutedMatching("trigger")) != 0 {
		t.Errorf("triggers touched after producer failure: %v", conn.Executed())
	}
}

func TestInvoker_ChunkFailureRemovesTriggers(t *testing.T) {
	conn := newConn("8.0.35")
	boom := errors.New("Lock wait timeout exceeded")
	conn.FailOn("insert ignore", boom)

	err := New(newProducer(), conn, common.NewNopLogger()).Run(context.Background(), options())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(conn.ExecutedMatching("drop trigger")); got != 6 {
		t.Errorf("drop trigger statements = %d, want 6", got)
	}
}

type journal struct {
	started  []RunInfo
	finished []RunResult
	failOn   string
}

func (j *journal) RunStarted(_ context.Context, run RunInfo) (int64, error) {
	if j.failOn == "start" {
		return 0, errors.New("journal down")
	}
	j.started = append(j.started, run)
	return int64(len(j.started)), nil
}

func (j *journal) RunFinished(_ context.Context, _ int64, result RunResult) error {
	j.finished = append(j.finished, result)
	return nil
}

func TestInvoker_Journal(t *testing.T) {
	conn := newConn("8.0.35")
	conn.Affected = 2
	j := &journal{}
	inv := New(newProducer(), conn, common.NewNopLogger())
	inv.SetJournal(j)

	if err := inv.Run(context.Background(), options()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(j.started) != 1 || len(j.finished) != 1 {
		t.Fatalf("journal = %+v", j)
	}
	want := RunInfo{Origin: "origin", Destination: "lhmn_origin", Archive: archive, Strategy: "atomic",
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)}
	if j.started[0] != want {
		t.Errorf("started = %+v", j.started[0])
	}
	if r := j.finished[0]; r.Err != nil || r.Chunks != 2 || r.Rows != 4 {
		t.Errorf("finished = %+v", r)
	}
}

func TestInvoker_JournalFailureDoesNotFailRun(t *testing.T) {
	conn := newConn("8.0.35")
	inv := New(newProducer(), conn, common.NewNopLogger())
	j := &journal{failOn: "start"}
	inv.SetJournal(j)

	if err := inv.Run(context.Background(), options()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(j.finished) != 0 {
		t.Errorf("finish recorded without a start: %+v", j.finished)
	}
}

func TestSessionLockWaitTimeout(t *testing.T) {
	tests := []struct {
		name        string
		global, max int64
		want        int64
		ok          bool
	}{
		{"adds delta", 50, constants.InnodbLockWaitTimeoutMax, 60, true},
		{"reaches ceiling exactly", constants.LockWaitTimeoutMax - 10, constants.LockWaitTimeoutMax, constants.LockWaitTimeoutMax, true},
		{"above ceiling is skipped", constants.LockWaitTimeoutMax - 5, constants.LockWaitTimeoutMax, constants.LockWaitTimeoutMax - 5, false},
		{"global at ceiling is skipped", constants.InnodbLockWaitTimeoutMax, constants.InnodbLockWaitTimeoutMax, constants.InnodbLockWaitTimeoutMax, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SessionLockWaitTimeout(tt.global, tt.max)
			if got != tt.want || ok != tt.ok {
				t.Errorf("SessionLockWaitTimeout(%d, %d) = %d, %v; want %d, %v", tt.global, tt.max, got, ok, tt.want, tt.ok)
			}
			if got > tt.max {
				t.Errorf("session value %d above ceiling %d", got, tt.max)
			}
		})
	}
}

func TestSetSessionLockWaitTimeouts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("show global variables like 'innodb_lock_wait_timeout'").
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("innodb_lock_wait_timeout", "1073741820"))
	mock.ExpectQuery("show global variables like 'lock_wait_timeout'").
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("lock_wait_timeout", "50"))
	mock.ExpectExec("set session lock_wait_timeout=60").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := SetSessionLockWaitTimeouts(context.Background(), mysql.NewConn(db), common.NewNopLogger()); err != nil {
		t.Fatalf("SetSessionLockWaitTimeouts() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
