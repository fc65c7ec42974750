package constants

import "time"

// Naming conventions for the tables and triggers lhm creates
const (
	DestinationPrefix = "lhmn_"
	ArchivePrefix     = "lhma_"
	TriggerPrefix     = "lhmt"

	// MySQL identifier length limit
	MaxIdentifierLength = 64

	// Appended to generated DDL so it can be identified in the processlist / binlog
	StatementTag = "/* large hadron migration */"

	DefaultOrderColumn = "id"
)

// Session lock wait tuning
const (
	LockWaitTimeoutDelta       = 10
	InnodbLockWaitTimeoutMax   = 1073741824 // innodb_lock_wait_timeout upper bound
	LockWaitTimeoutMax         = 31536000   // lock_wait_timeout upper bound (one year)
	InnodbLockWaitTimeoutName  = "innodb_lock_wait_timeout"
	LockWaitTimeoutName        = "lock_wait_timeout"
	ArchiveTimestampLayout     = "2006_01_02_15_04_05"
	DefaultTeardownTimeout     = 30 * time.Second
	DefaultConnectPingAttempts = 5
)

// Throttler defaults
const (
	DefaultStride        = 2000
	DefaultThrottleDelay = 100 * time.Millisecond
)

// History store defaults
const (
	DefaultHistoryTable   = "lhm_runs"
	DefaultHistoryDBFile  = "lhm_history.db"
	DefaultPostgresPort   = 5432
	DefaultPostgresSSL    = "disable"
	DefaultMySQLPort      = 3306
	DefaultHistoryListMax = 20

	DefaultPostgresMaxConnections = 5
	DefaultPostgresMaxIdleConns   = 2
	DefaultMaxConnLifetime        = 5 * time.Minute
	DefaultMaxIdleTime            = 1 * time.Minute
)
