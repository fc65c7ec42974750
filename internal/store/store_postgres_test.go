package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/lhm/internal/store/postgresql"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// waitForPostgresDSN pings the DSN until it responds or timeout elapses (pgx stdlib).
func waitForPostgresDSN(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			pingErr := db.Ping()
			_ = db.Close()
			if pingErr == nil {
				return nil
			}
			lastErr = pingErr
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for postgres")
	}
	return lastErr
}

// Integration test with PostgreSQL via testcontainers
func TestStore_PostgresLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := tc.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "lhm_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		),
	}
	pg, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("skipping Postgres container test: %v", err)
		return
	}
	defer func() { _ = pg.Terminate(ctx) }()

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	pcfg := postgresql.Config{Host: host, Port: port.Int(), User: "test", Password: "test", DBName: "lhm_test"}
	if err := waitForPostgresDSN(pcfg.BuildDSN(), 30*time.Second); err != nil {
		t.Fatalf("postgres not ready: %v", err)
	}

	s, err := Open(ctx, Config{Driver: "postgresql", Table: "lhm_runs_it", Postgres: pcfg})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := s.Begin(ctx, Run{Origin: "users", Destination: "lhmn_users", Archive: "lhma_x_users", Strategy: "locked", StartedAt: started})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := s.Finish(ctx, id, 3, 30, fmt.Errorf("trigger drift"), started.Add(time.Second)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	runs, err := s.List(ctx, "users", 5)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("List() = %+v", runs)
	}
	r := runs[0]
	if r.Status != StatusFailed || r.Error != "trigger drift" || r.Chunks != 3 || r.Rows != 30 {
		t.Errorf("run = %+v", r)
	}
	if !r.StartedAt.Equal(started) || r.FinishedAt == nil || !r.FinishedAt.Equal(started.Add(time.Second)) {
		t.Errorf("timestamps = %v, %v", r.StartedAt, r.FinishedAt)
	}
}
