// Package chunker backfills the destination table from the origin table in
// ranges over the order column, pacing itself with a throttler.
package chunker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/mysql"
	"github.com/loykin/lhm/internal/progress"
	"github.com/loykin/lhm/internal/schema"
	"github.com/loykin/lhm/internal/throttler"
)

// Options configures a Chunker. Nil Start/Limit are read from the origin table.
type Options struct {
	Throttler throttler.Throttler
	Start     *int64
	Limit     *int64
	Printer   progress.Printer
	Logger    *common.Logger
}

// Chunker copies rows in [start, limit] in consecutive inclusive ranges.
type Chunker struct {
	migration *schema.Migration
	conn      mysql.Connection
	throttler throttler.Throttler
	printer   progress.Printer
	logger    *common.Logger

	start, limit       int64
	hasStart, hasLimit bool
	prepared           bool

	chunks, rows int64
}

// New returns a chunker for migration.
func New(migration *schema.Migration, conn mysql.Connection, opts Options) *Chunker {
	c := &Chunker{
		migration: migration,
		conn:      conn,
		throttler: opts.Throttler,
		printer:   opts.Printer,
		logger:    opts.Logger,
	}
	if c.throttler == nil {
		c.throttler = throttler.Default()
	}
	if c.printer == nil {
		c.printer = progress.Nop{}
	}
	if c.logger == nil {
		c.logger = common.GetLogger()
	}
	c.logger = c.logger.WithComponent("chunker").WithTable(migration.Origin.Name)
	if opts.Start != nil {
		c.start, c.hasStart = *opts.Start, true
	}
	if opts.Limit != nil {
		c.limit, c.hasLimit = *opts.Limit, true
	}
	return c
}

// Start is the first order column value to copy.
func (c *Chunker) Start() int64 { return c.start }

// Limit is the last order column value to copy.
func (c *Chunker) Limit() int64 { return c.limit }

// Copied returns the number of chunks executed so far and the rows they inserted.
func (c *Chunker) Copied() (chunks, rows int64) { return c.chunks, c.rows }

// TraversableChunksSize is the number of chunks [start, limit] takes at the
// throttler's current stride. It is 0 for an empty range.
func (c *Chunker) TraversableChunksSize() int64 {
	if c.limit < c.start {
		return 0
	}
	stride := c.throttler.Stride()
	if stride <= 0 {
		return 0
	}
	span := uint64(c.limit-c.start) + 1
	return int64((span + uint64(stride) - 1) / uint64(stride))
}

// Run copies every chunk. A new stride is read from the throttler for each
// chunk, and the throttler's pause runs after each copy.
func (c *Chunker) Run(ctx context.Context) error {
	if err := c.Prepare(ctx); err != nil {
		return err
	}
	if c.limit < c.start {
		c.logger.Info("nothing to copy", "start", c.start, "limit", c.limit)
		return nil
	}

	c.logger.Info("copying rows", "start", c.start, "limit", c.limit)
	c.printer.Start(c.limit - c.start + 1)
	defer c.printer.End()

	for from := c.start; ; {
		stride := c.throttler.Stride()
		if stride <= 0 {
			return fmt.Errorf("%w: got %d", throttler.ErrInvalidStride, stride)
		}
		to := c.limit
		if from <= math.MaxInt64-(stride-1) && from+stride-1 < c.limit {
			to = from + stride - 1
		}

		affected, err := c.conn.Execute(ctx, c.Copy(from, to))
		if err != nil {
			return fmt.Errorf("copy chunk [%d, %d]: %w", from, to, err)
		}
		c.chunks++
		c.rows += affected
		c.printer.Notify(to - c.start + 1)
		c.logger.Debug("chunk copied", "from", from, "to", to, "rows", affected)

		if err := c.throttler.Run(ctx); err != nil {
			return err
		}
		if to >= c.limit {
			break
		}
		from = to + 1
	}
	c.logger.Info("copy finished", "chunks", c.chunks, "rows", c.rows)
	return nil
}

// Copy returns the statement that copies the rows of [from, to].
func (c *Chunker) Copy(from, to int64) string {
	in := c.migration.Intersection()
	origin := c.migration.Origin.Name
	return fmt.Sprintf("insert ignore into %s (%s) select %s from %s %s between %d and %d",
		schema.QuoteIdent(c.migration.Destination.Name),
		schema.JoinQuoted(in.Destination),
		schema.Typed(origin, in.Origin),
		schema.QuoteIdent(origin),
		c.conditions(),
		from, to,
	)
}

// conditions renders everything between the from clause and "between". The
// range always narrows the migration's own filter or join, never replaces it.
func (c *Chunker) conditions() string {
	order := schema.QuoteIdent(c.migration.OrderColumn)
	filter := strings.TrimSpace(c.migration.Conditions)
	if filter == "" {
		return fmt.Sprintf("where %s.%s", c.migration.Origin.Name, order)
	}
	return RewriteConditions(filter, schema.QuoteIdent(c.migration.Origin.Name)+"."+order)
}

// RewriteConditions conjoins the range column rng with a filter fragment, so
// that appending "between <from> and <to>" yields a valid narrowing condition.
// A where clause is parenthesized. An inner join is kept as is with the range
// added as its own "and" clause. An outer join gets the range as a where
// clause: its on clause never drops origin rows. A join's own
// trailing where clause is parenthesized. A bare predicate is treated like a
// where clause.
func RewriteConditions(filter, rng string) string {
	filter = strings.TrimSpace(filter)
	lower := strings.ToLower(filter)

	if hasKeyword(lower, "where") {
		return "where (" + strings.TrimSpace(filter[len("where"):]) + ") and " + rng
	}
	if joinPrefix.MatchString(lower) {
		if at, rest := whereIndex(lower); at >= 0 {
			return strings.TrimSpace(filter[:at]) + " where (" + strings.TrimSpace(filter[rest:]) + ") and " + rng
		}
		if outerJoin.MatchString(lower) {
			return filter + " where " + rng
		}
		return filter + " and " + rng
	}
	return "where (" + filter + ") and " + rng
}

var (
	joinPrefix = regexp.MustCompile(`^((((inner|cross|left(\s+outer)?|right(\s+outer)?)\s+)?join)|straight_join)\s`)
	outerJoin  = regexp.MustCompile(`(^|\s)(left|right)(\s+outer)?\s+join\s`)
)

func hasKeyword(lower, kw string) bool {
	if !strings.HasPrefix(lower, kw) {
		return false
	}
	rest := lower[len(kw):]
	return rest == "" || isSpace(rest[0]) || rest[0] == '('
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// whereIndex finds a where keyword preceded by whitespace outside of
// parentheses and quotes. It returns the index of that whitespace and the
// index right after the keyword, or -1.
func whereIndex(lower string) (at, rest int) {
	depth := 0
	var quote byte
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case depth == 0 && isSpace(ch) && hasKeyword(lower[i+1:], "where") && len(lower) > i+1+len("where"):
			return i, i + 1 + len("where")
		}
	}
	return -1, -1
}

// Prepare reads unset bounds from the origin table. Run calls it; calling it
// earlier makes Start, Limit and TraversableChunksSize meaningful before the copy.
func (c *Chunker) Prepare(ctx context.Context) error {
	if c.prepared {
		return nil
	}
	if err := c.resolveBounds(ctx); err != nil {
		return err
	}
	c.prepared = true
	return nil
}

func (c *Chunker) resolveBounds(ctx context.Context) error {
	if !c.hasStart {
		v, ok, err := c.selectBound(ctx, "min")
		if err != nil {
			return err
		}
		if !ok {
			c.start, c.limit, c.hasLimit = 1, 0, true
			return nil
		}
		c.start = v
	}
	if !c.hasLimit {
		v, ok, err := c.selectBound(ctx, "max")
		if err != nil {
			return err
		}
		if !ok {
			c.limit = c.start - 1
			return nil
		}
		c.limit = v
	}
	return nil
}

func (c *Chunker) selectBound(ctx context.Context, fn string) (int64, bool, error) {
	q := fmt.Sprintf("select %s(%s) from %s", fn, schema.QuoteIdent(c.migration.OrderColumn), schema.QuoteIdent(c.migration.Origin.Name))
	raw, ok, err := c.conn.SelectValue(ctx, q)
	if err != nil {
		return 0, false, fmt.Errorf("read %s bound: %w", fn, err)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s(%s) is not an integer: %q", fn, c.migration.OrderColumn, raw)
	}
	return v, true, nil
}
