package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/lhm"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/progress"
	"github.com/loykin/lhm/internal/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type changeFlags struct {
	table    string
	alters   []string
	renames  []string
	indexes  []string
	filter   string
	orderBy  string
	progress bool
	opts     OptionFlags
}

var change changeFlags

var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Alter a table online: copy, entangle, backfill and switch",
	Example: `  lhm change --table users --alter "add column age int not null default 0"
  lhm change --table users --rename email:contact --add-index name,email --atomic-switch false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := change
		if cmd.Flags().Changed("start") {
			v, _ := cmd.Flags().GetInt64("start")
			f.opts.Start = lhm.Int64(v)
		}
		if cmd.Flags().Changed("limit") {
			v, _ := cmd.Flags().GetInt64("limit")
			f.opts.Limit = lhm.Int64(v)
		}
		define, err := f.define()
		if err != nil {
			return err
		}

		doc, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		opts, err := doc.Options(f.opts)
		if err != nil {
			return err
		}
		if f.progress {
			opts.Printer = progress.NewBar(cmd.ErrOrStderr(), "copying "+f.table)
		} else {
			opts.Printer = progress.NewLog(common.GetLogger().WithTable(f.table), 10)
		}

		ctx := cmd.Context()
		db, err := openMySQL(ctx, doc)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		history, err := openHistory(ctx, doc)
		if err != nil {
			return err
		}
		if history != nil {
			defer func() { _ = history.Close() }()
		}

		changer := &lhm.Changer{DB: db, History: history}
		m, err := changer.Change(ctx, strings.TrimSpace(f.table), define, opts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s changed, original kept as %s\n", f.table, m.ArchiveName())
		return nil
	},
}

// define turns the flags into migrator calls.
func (f changeFlags) define() (func(m *lhm.Migrator), error) {
	table := strings.TrimSpace(f.table)
	if table == "" {
		return nil, fmt.Errorf("--table is required")
	}
	type rename struct{ from, to string }
	var renames []rename
	for _, r := range f.renames {
		from, to, ok := strings.Cut(r, ":")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid --rename %q, want old:new", r)
		}
		renames = append(renames, rename{from, to})
	}
	var indexes [][]string
	for _, idx := range f.indexes {
		var cols []string
		for _, c := range strings.Split(idx, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("invalid --add-index %q", idx)
		}
		indexes = append(indexes, cols)
	}
	if len(f.alters) == 0 && len(renames) == 0 && len(indexes) == 0 {
		return nil, fmt.Errorf("nothing to change: use --alter, --rename or --add-index")
	}

	return func(m *lhm.Migrator) {
		for _, a := range f.alters {
			m.Ddl(fmt.Sprintf("alter table %s %s", schema.QuoteIdent(m.Name()), strings.TrimSpace(a)))
		}
		for _, r := range renames {
			m.RenameColumn(r.from, r.to)
		}
		for _, cols := range indexes {
			m.AddIndex(cols, "")
		}
		if c := strings.TrimSpace(f.filter); c != "" {
			m.Filter(c)
		}
		if c := strings.TrimSpace(f.orderBy); c != "" {
			m.OrderBy(c)
		}
	}, nil
}

func init() {
	fl := changeCmd.Flags()
	fl.StringVar(&change.table, "table", "", "table to change")
	fl.StringArrayVar(&change.alters, "alter", nil, "alter clause applied to the copy, e.g. \"add column c int\" (repeatable)")
	fl.StringArrayVar(&change.renames, "rename", nil, "rename a column, old:new (repeatable)")
	fl.StringArrayVar(&change.indexes, "add-index", nil, "add an index on comma separated columns (repeatable)")
	fl.StringVar(&change.filter, "filter", "", "only copy rows matching a \"where ...\" or \"inner join ...\" fragment")
	fl.StringVar(&change.orderBy, "order-by", "", "column the backfill ranges over (default: primary key)")
	fl.Int64("start", 0, "first order column value to copy (default: minimum in table)")
	fl.Int64("limit", 0, "last order column value to copy (default: maximum in table)")
	fl.StringVar(&change.opts.AtomicSwitch, "atomic-switch", "", "true or false; default detects from the server version")
	fl.StringVar(&change.opts.Throttler, "throttler", "", "throttler name (time, none)")
	fl.Int64Var(&change.opts.Stride, "stride", 0, "order column values per chunk")
	fl.DurationVar(&change.opts.Delay, "delay", time.Duration(0), "pause between chunks, e.g. 100ms")
	fl.BoolVar(&change.progress, "progress", false, "show a progress bar on stderr instead of logging progress")
}
