package switcher

import (
	"context"
	"fmt"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

// Atomic swaps the tables with one multi-table rename, so no session ever
// sees the origin name unresolved.
type Atomic struct {
	base
}

// NewAtomic returns an atomic switcher.
func NewAtomic(migration *schema.Migration, conn mysql.Connection, logger *common.Logger) *Atomic {
	return &Atomic{base: newBase("atomic", migration, conn, logger)}
}

func (s *Atomic) Strategy() string { return "atomic" }

func (s *Atomic) Statements() []string {
	origin := schema.QuoteIdent(s.migration.Origin.Name)
	return []string{fmt.Sprintf("rename table %s to %s, %s to %s",
		origin, schema.QuoteIdent(s.migration.ArchiveName()),
		schema.QuoteIdent(s.migration.Destination.Name), origin)}
}

func (s *Atomic) Run(ctx context.Context) error {
	if err := s.validate(ctx); err != nil {
		return err
	}
	for _, stmt := range s.Statements() {
		if err := s.exec(ctx, stmt); err != nil {
			return fmt.Errorf("atomic switch: %w", err)
		}
	}
	s.logger.Info("switched", "archive", s.migration.ArchiveName())
	return nil
}
