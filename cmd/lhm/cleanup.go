package main

import (
	"fmt"
	"io"

	"github.com/loykin/lhm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanupRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "List (or with --run, drop) tables and triggers left by earlier runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := openMySQL(ctx, doc)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		report, err := lhm.Cleanup(ctx, db, cleanupRun)
		printCleanupReport(cmd.OutOrStdout(), report)
		return err
	},
}

func printCleanupReport(w io.Writer, r lhm.CleanupReport) {
	if r.Empty() {
		_, _ = fmt.Fprintln(w, "Everything is clean.")
		return
	}
	if r.Executed {
		_, _ = fmt.Fprintln(w, "Dropped:")
	} else {
		_, _ = fmt.Fprintln(w, "Would drop (run with --run):")
	}
	for _, s := range r.Statements {
		_, _ = fmt.Fprintf(w, "  %s\n", s)
	}
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupRun, "run", false, "drop the leftovers instead of listing them")
}
