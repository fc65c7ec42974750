package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/lhm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "lhm",
	Short:         "Change the schema of a live MySQL table without blocking writes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()
	v.SetDefault("config", "")
	v.SetDefault("env_file", ".env")
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "")

	// Environment variables support: LHM_CONFIG, LHM_DSN, LHM_LOG_LEVEL, ...
	v.SetEnvPrefix("LHM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("config", v.GetString("config"), "path to a config yaml")
	pf.String("dsn", "", "mysql dsn, e.g. user:pass@tcp(host:3306)/db (overrides the config file)")
	pf.String("env-file", v.GetString("env_file"), "dotenv file loaded before reading the environment")
	pf.String("log-level", "", "error, warn, info or debug")
	pf.String("log-format", "", "text or json")

	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("dsn", pf.Lookup("dsn"))
	_ = v.BindPFlag("env_file", pf.Lookup("env-file"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log_format", pf.Lookup("log-format"))

	rootCmd.AddCommand(changeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config file named by viper, applies command line and
// environment overrides and configures logging.
func loadConfig(v *viper.Viper) (*ConfigDoc, error) {
	if err := loadDotEnv(v.GetString("env_file")); err != nil {
		return nil, err
	}
	doc := &ConfigDoc{}
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		if err := doc.Load(path); err != nil {
			return nil, err
		}
	}
	doc.ApplyDSN(v.GetString("dsn"))
	if lvl := strings.TrimSpace(v.GetString("log_level")); lvl != "" {
		doc.Logging.Level = lvl
	}
	if f := strings.TrimSpace(v.GetString("log_format")); f != "" {
		doc.Logging.Format = f
	}
	if err := doc.SetupLogging(); err != nil {
		return nil, err
	}
	return doc, nil
}

func openMySQL(ctx context.Context, doc *ConfigDoc) (*sql.DB, error) {
	db, err := lhm.OpenMySQL(ctx, doc.MySQL)
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return db, nil
}

// openHistory opens the run history when the config enables it; nil otherwise.
func openHistory(ctx context.Context, doc *ConfigDoc) (*lhm.Store, error) {
	if !doc.History.Enabled {
		return nil, nil
	}
	return lhm.OpenStore(ctx, doc.History.StoreConfig)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
