package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/loykin/lhm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	historyLimit int
	historyTable string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if !doc.History.Enabled {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "History is disabled - enable it under history: in the config file")
			return nil
		}
		return showHistory(cmd.Context(), cmd.OutOrStdout(), doc.History.StoreConfig, historyTable, historyLimit)
	},
}

func showHistory(ctx context.Context, w io.Writer, cfg lhm.StoreConfig, table string, limit int) error {
	s, err := lhm.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	runs, err := s.List(ctx, table, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTABLE\tSTRATEGY\tSTATUS\tCHUNKS\tROWS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.ID, r.Origin, r.Strategy, r.Status, r.Chunks, r.Rows,
			r.StartedAt.Local().Format(time.RFC3339), duration, r.Error)
	}
	return tw.Flush()
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "show up to N latest runs")
	historyCmd.Flags().StringVar(&historyTable, "table", "", "only runs of this table")
}
