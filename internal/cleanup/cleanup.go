// Package cleanup finds and removes the tables and triggers aborted or
// finished runs leave behind.
package cleanup

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

const (
	tablesQuery   = "show tables"
	triggersQuery = "select trigger_name as name from information_schema.triggers where trigger_schema = database() order by trigger_name"
)

// Report lists the leftovers found in the current schema.
type Report struct {
	Tables   []string
	Triggers []string
	// Statements are the drops that remove the leftovers.
	Statements []string
	// Executed is true when the drops were run.
	Executed bool
}

// Empty reports whether nothing was found.
func (r Report) Empty() bool { return len(r.Tables) == 0 && len(r.Triggers) == 0 }

// Run lists lhm leftovers. When run is true they are dropped; otherwise the
// report only describes what would be dropped.
func Run(ctx context.Context, conn mysql.Connection, run bool, logger *common.Logger) (Report, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	logger = logger.WithComponent("cleanup")

	var r Report
	tables, err := conn.SelectValues(ctx, tablesQuery)
	if err != nil {
		return r, fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if strings.HasPrefix(t, constants.ArchivePrefix) || strings.HasPrefix(t, constants.DestinationPrefix) {
			r.Tables = append(r.Tables, t)
			r.Statements = append(r.Statements, "drop table if exists "+schema.QuoteIdent(t))
		}
	}

	triggers, err := conn.SelectValues(ctx, triggersQuery)
	if err != nil {
		return r, fmt.Errorf("list triggers: %w", err)
	}
	for _, t := range triggers {
		if strings.HasPrefix(t, constants.TriggerPrefix) {
			r.Triggers = append(r.Triggers, t)
			r.Statements = append(r.Statements, "drop trigger if exists "+schema.QuoteIdent(t))
		}
	}

	if r.Empty() {
		logger.Info("everything is clean")
		return r, nil
	}
	if !run {
		logger.Info("leftovers found, not dropping", "tables", r.Tables, "triggers", r.Triggers)
		return r, nil
	}

	for _, stmt := range r.Statements {
		if _, err := conn.Execute(ctx, stmt); err != nil {
			return r, fmt.Errorf("cleanup: %w", err)
		}
	}
	r.Executed = true
	logger.Info("leftovers dropped", "tables", len(r.Tables), "triggers", len(r.Triggers))
	return r, nil
}
