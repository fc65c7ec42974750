package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/retry"
)

// Config describes how to reach the MySQL server holding the table to migrate.
// An explicit DSN wins over the discrete fields.
type Config struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	// Timeout bounds connection establishment, e.g. "5s".
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// FormatDSN returns the go-sql-driver DSN for c.
func (c Config) FormatDSN() (string, error) {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		if _, err := driver.ParseDSN(dsn); err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return dsn, nil
	}
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return "", fmt.Errorf("mysql: either dsn or host is required")
	}
	port := c.Port
	if port == 0 {
		port = constants.DefaultMySQLPort
	}

	cfg := driver.NewConfig()
	cfg.User = strings.TrimSpace(c.User)
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = strings.TrimSpace(c.Database)
	if t := strings.TrimSpace(c.Timeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return "", fmt.Errorf("invalid mysql timeout %q: %w", t, err)
		}
		cfg.Timeout = d
	}
	return cfg.FormatDSN(), nil
}

// Open opens a pool for c and waits until the server answers a ping.
func Open(ctx context.Context, c Config) (*sql.DB, error) {
	dsn, err := c.FormatDSN()
	if err != nil {
		return nil, err
	}
	logger := common.GetLogger().WithComponent("mysql")
	logger.Debug("opening mysql connection", "dsn", common.MaskSensitiveData(dsn))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	err = retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}
