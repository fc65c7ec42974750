package switcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/guard"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

const (
	autocommitOff = "set @@session.autocommit=0"
	autocommitOn  = "set @@session.autocommit=1"
	unlockTables  = "unlock tables"
)

// Locked write-locks both tables and renames them one after the other. For
// servers where a multi-table rename is not safe to use.
type Locked struct {
	base
}

// NewLocked returns a locked switcher.
func NewLocked(migration *schema.Migration, conn mysql.Connection, logger *common.Logger) *Locked {
	return &Locked{base: newBase("locked", migration, conn, logger)}
}

func (s *Locked) Strategy() string { return "locked" }

// Statements returns the full sequence of a successful switch.
func (s *Locked) Statements() []string {
	return []string{
		autocommitOff,
		s.lock(),
		s.renameOrigin(),
		s.renameDestination(),
		"commit",
		unlockTables,
		autocommitOn,
	}
}

// Run switches the tables. Table locks and autocommit are restored on every
// exit path; if the destination rename fails the origin rename is reverted
// while the locks are still held.
func (s *Locked) Run(ctx context.Context) error {
	if err := s.validate(ctx); err != nil {
		return err
	}
	return guard.Run(ctx, s.logger, func(ctx context.Context, g *guard.Guard) error {
		if err := s.exec(ctx, autocommitOff); err != nil {
			return fmt.Errorf("locked switch: %w", err)
		}
		g.Defer("restore autocommit", func(ctx context.Context) error { return s.exec(ctx, autocommitOn) })

		if err := s.exec(ctx, s.lock()); err != nil {
			return fmt.Errorf("locked switch: %w", err)
		}
		g.Defer("unlock tables", func(ctx context.Context) error { return s.exec(ctx, unlockTables) })

		if err := s.exec(ctx, s.renameOrigin()); err != nil {
			return fmt.Errorf("locked switch: %w", err)
		}
		if err := s.exec(ctx, s.renameDestination()); err != nil {
			err = fmt.Errorf("locked switch: %w", err)
			if rerr := s.exec(context.WithoutCancel(ctx), s.revertOrigin()); rerr != nil {
				return errors.Join(err, fmt.Errorf("revert origin rename: %w", rerr))
			}
			s.logger.Warn("destination rename failed, origin restored")
			return err
		}
		if err := s.exec(ctx, "commit"); err != nil {
			return fmt.Errorf("locked switch: %w", err)
		}
		s.logger.Info("switched", "archive", s.migration.ArchiveName())
		return nil
	})
}

func (s *Locked) lock() string {
	return fmt.Sprintf("lock table %s write, %s write",
		schema.QuoteIdent(s.migration.Origin.Name), schema.QuoteIdent(s.migration.Destination.Name))
}

func (s *Locked) renameOrigin() string {
	return fmt.Sprintf("alter table %s rename %s",
		schema.QuoteIdent(s.migration.Origin.Name), schema.QuoteIdent(s.migration.ArchiveName()))
}

func (s *Locked) renameDestination() string {
	return fmt.Sprintf("alter table %s rename %s",
		schema.QuoteIdent(s.migration.Destination.Name), schema.QuoteIdent(s.migration.Origin.Name))
}

func (s *Locked) revertOrigin() string {
	return fmt.Sprintf("alter table %s rename %s",
		schema.QuoteIdent(s.migration.ArchiveName()), schema.QuoteIdent(s.migration.Origin.Name))
}
