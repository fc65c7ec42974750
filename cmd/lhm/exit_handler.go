package main

import (
	"errors"
	"os"

	"github.com/loykin/lhm"
	"github.com/loykin/lhm/internal/common"
)

// ExitHandler provides a testable way to handle program termination
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
}

// DefaultExitHandler logs through the process logger and exits.
type DefaultExitHandler struct{}

// Exit terminates the program with the given exit code
func (h *DefaultExitHandler) Exit(code int) {
	os.Exit(code)
}

// LogFatalError logs a fatal error and exits the program. The logger is
// looked up at call time so the configured one is used.
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	allKeyvals := append([]any{"error", common.MaskSensitiveData(err.Error())}, keyvals...)
	common.GetLogger().WithComponent("main").Error(msg, allKeyvals...)
	h.Exit(exitCode(err))
}

// exitCode distinguishes refused runs (2) and integrity failures (3) from
// other errors (1).
func exitCode(err error) int {
	switch {
	case errors.Is(err, lhm.ErrConfiguration):
		return 2
	case errors.Is(err, lhm.ErrTriggersMissing):
		return 3
	default:
		return 1
	}
}

// Global exit handler (can be replaced for testing)
var exitHandler ExitHandler = &DefaultExitHandler{}
