package mysql

import (
	"errors"

	driver "github.com/go-sql-driver/mysql"
)

// Server error numbers lhm reacts to.
const (
	ErNotSupportedYet      = 1235 // e.g. a second trigger with the same timing and event before 5.7
	ErTriggerAlreadyExists = 1359
	ErTriggerDoesNotExist  = 1360
	ErNoSuchTable          = 1146
	ErAccessDenied         = 1142
	ErSpecificAccessDenied = 1227
)

// IsErrorCode reports whether err carries a MySQL server error with one of codes.
func IsErrorCode(err error, codes ...uint16) bool {
	var me *driver.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, c := range codes {
		if me.Number == c {
			return true
		}
	}
	return false
}
