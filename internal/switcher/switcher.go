// Package switcher moves the destination table into the origin's place and
// parks the origin under its archive name.
package switcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/schema"
)

// ErrTableMissing is returned when origin or destination is gone at switch time.
var ErrTableMissing = errors.New("switcher: table missing")

// Switcher performs the cutover.
type Switcher interface {
	// Strategy names the variant, "atomic" or "locked".
	Strategy() string
	// Statements returns the cutover statements in execution order.
	Statements() []string
	Run(ctx context.Context) error
}

// New returns the atomic switcher when atomic is true, otherwise the locked one.
func New(atomic bool, migration *schema.Migration, conn mysql.Connection, logger *common.Logger) Switcher {
	if atomic {
		return NewAtomic(migration, conn, logger)
	}
	return NewLocked(migration, conn, logger)
}

type base struct {
	migration *schema.Migration
	conn      mysql.Connection
	logger    *common.Logger
}

func newBase(strategy string, migration *schema.Migration, conn mysql.Connection, logger *common.Logger) base {
	if logger == nil {
		logger = common.GetLogger()
	}
	return base{
		migration: migration,
		conn:      conn,
		logger:    logger.WithComponent("switcher").WithTable(migration.Origin.Name).WithStrategy(strategy),
	}
}

// validate checks that both tables still exist.
func (b base) validate(ctx context.Context) error {
	for _, name := range []string{b.migration.Origin.Name, b.migration.Destination.Name} {
		ok, err := mysql.TableExists(ctx, b.conn, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrTableMissing, name)
		}
	}
	return nil
}

func (b base) exec(ctx context.Context, stmt string) error {
	_, err := b.conn.Execute(ctx, stmt)
	return err
}
