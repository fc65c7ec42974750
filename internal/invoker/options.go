package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/progress"
	"github.com/loykin/lhm/internal/throttler"
)

// ErrConfiguration is returned when options cannot be resolved into a run.
var ErrConfiguration = errors.New("lhm: configuration error")

// Options controls a single run.
type Options struct {
	// AtomicSwitch forces the switch strategy. When nil the atomic switch is
	// used if the server supports it; otherwise the run refuses to start.
	AtomicSwitch *bool `mapstructure:"atomic_switch" yaml:"atomic_switch"`
	// Throttler takes precedence over ThrottlerName.
	Throttler        throttler.Throttler    `mapstructure:"-" yaml:"-"`
	ThrottlerName    string                 `mapstructure:"throttler" yaml:"throttler"`
	ThrottlerOptions map[string]interface{} `mapstructure:"throttler_options" yaml:"throttler_options"`
	// Start and Limit bound the backfill; nil reads them from the origin table.
	Start *int64 `mapstructure:"start" yaml:"start"`
	Limit *int64 `mapstructure:"limit" yaml:"limit"`
	// Printer receives backfill progress. Defaults to no output.
	Printer progress.Printer `mapstructure:"-" yaml:"-"`
}

// settings are Options after validation.
type settings struct {
	atomic    bool
	throttler throttler.Throttler
	start     *int64
	limit     *int64
	printer   progress.Printer
}

func (o Options) normalize(ctx context.Context, conn mysql.Connection) (settings, error) {
	s := settings{start: o.Start, limit: o.Limit, printer: o.Printer}
	if s.printer == nil {
		s.printer = progress.Nop{}
	}

	if o.AtomicSwitch != nil {
		s.atomic = *o.AtomicSwitch
	} else {
		version, err := mysql.ServerVersion(ctx, conn)
		if err != nil {
			return settings{}, err
		}
		ok, err := mysql.SupportsAtomicSwitch(version)
		if err != nil {
			return settings{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if !ok {
			return settings{}, fmt.Errorf("%w: mysql %s has a buggy multi-table rename; "+
				"set atomic_switch explicitly (false selects the locked switch)", ErrConfiguration, version)
		}
		s.atomic = true
	}

	switch {
	case o.Throttler != nil:
		s.throttler = o.Throttler
	case strings.TrimSpace(o.ThrottlerName) != "":
		t, err := throttler.Create(o.ThrottlerName, o.ThrottlerOptions)
		if err != nil {
			return settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		s.throttler = t
	default:
		s.throttler = throttler.Default()
	}
	return s, nil
}
