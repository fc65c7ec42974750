package invoker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

var lockWaitTimeouts = []struct {
	name string
	max  int64
}{
	{constants.InnodbLockWaitTimeoutName, constants.InnodbLockWaitTimeoutMax},
	{constants.LockWaitTimeoutName, constants.LockWaitTimeoutMax},
}

// SessionLockWaitTimeout is the session value for a global lock wait timeout:
// global plus the delta. ok is false when that exceeds max, and the session
// keeps the global value.
func SessionLockWaitTimeout(global, max int64) (value int64, ok bool) {
	if global > max-constants.LockWaitTimeoutDelta {
		return global, false
	}
	return global + constants.LockWaitTimeoutDelta, true
}

// SetSessionLockWaitTimeouts raises the session lock wait timeouts above the
// global ones so the run outlasts the statements it waits behind. Variables
// the server does not report are left alone.
func SetSessionLockWaitTimeouts(ctx context.Context, conn mysql.Connection, logger *common.Logger) error {
	if logger == nil {
		logger = common.GetLogger()
	}
	for _, v := range lockWaitTimeouts {
		row, err := conn.SelectOne(ctx, "show global variables like "+schema.QuoteString(v.name))
		if err != nil {
			return fmt.Errorf("read %s: %w", v.name, err)
		}
		if row == nil {
			logger.Debug("lock wait timeout not reported", "variable", v.name)
			continue
		}
		global, err := strconv.ParseInt(strings.TrimSpace(row["Value"]), 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s=%q: %w", v.name, row["Value"], err)
		}
		session, ok := SessionLockWaitTimeout(global, v.max)
		if !ok {
			logger.Debug("lock wait timeout left at global value", "variable", v.name, "global", global, "max", v.max)
			continue
		}
		if _, err := conn.Execute(ctx, fmt.Sprintf("set session %s=%d", v.name, session)); err != nil {
			return fmt.Errorf("set %s: %w", v.name, err)
		}
		logger.Debug("session lock wait timeout set", "variable", v.name, "global", global, "session", session)
	}
	return nil
}
