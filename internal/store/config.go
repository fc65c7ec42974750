package store

import (
	"github.com/loykin/lhm/internal/store/postgresql"
	"github.com/loykin/lhm/internal/store/sqlite"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

// Config selects and configures the history backend.
type Config struct {
	Driver   string            `mapstructure:"driver" yaml:"driver"`
	Table    string            `mapstructure:"table" yaml:"table"`
	SQLite   sqlite.Config     `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
}

// DriverConfig is implemented by each backend's configuration.
type DriverConfig interface {
	ToMap() map[string]interface{}
}

// DriverConfig returns the configuration of the selected backend.
func (c Config) DriverConfig() DriverConfig {
	if normalizeDriver(c.Driver) == DriverPostgresql {
		return &c.Postgres
	}
	return &c.SQLite
}
