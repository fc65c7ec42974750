package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/loykin/lhm"
	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/util"
	"gopkg.in/yaml.v3"
)

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
}

type HistoryConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	lhm.StoreConfig `mapstructure:",squash" yaml:",inline"`
}

type ThrottlerConfig struct {
	Name    string                 `mapstructure:"name" yaml:"name"`
	Options map[string]interface{} `mapstructure:"options" yaml:"options"`
}

type ConfigDoc struct {
	MySQL     lhm.MySQLConfig `mapstructure:"mysql" yaml:"mysql"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Throttler ThrottlerConfig `mapstructure:"throttler" yaml:"throttler"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	// AtomicSwitch forces the switch strategy for every change run with this config.
	AtomicSwitch *bool `mapstructure:"atomic_switch" yaml:"atomic_switch"`
}

// Load decodes the YAML document at path.
func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", clean, err)
	}
	return nil
}

// ApplyDSN lets a DSN from the command line or environment override the file.
func (c *ConfigDoc) ApplyDSN(dsn string) {
	if d, ok := util.TrimEmptyCheck(dsn); ok {
		c.MySQL.DSN = d
	}
}

func (c *ConfigDoc) parseLogLevel() (lhm.LogLevel, error) {
	level, ok := common.ParseLogLevel(util.TrimAndLower(c.Logging.Level))
	if !ok {
		return lhm.LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
	return level, nil
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := c.parseLogLevel()
	if err != nil {
		return err
	}

	var logger *lhm.Logger
	format := util.TrimAndLower(c.Logging.Format)
	switch format {
	case "json":
		logger = lhm.NewJSONLogger(level)
	case "text", "":
		logger = lhm.NewLogger(level)
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	common.EnableMasking(maskingEnabled)
	lhm.SetLogger(logger)

	logger.Debug("logging configured",
		"level", level.String(),
		"format", util.TrimWithDefault(format, "text"),
		"mask_sensitive", maskingEnabled)
	return nil
}

// OptionFlags are the change flags that map onto lhm.Options.
type OptionFlags struct {
	// AtomicSwitch is "", "true" or "false".
	AtomicSwitch string
	Throttler    string
	Stride       int64
	Delay        time.Duration
	Start        *int64
	Limit        *int64
}

// Options merges flags over the document's defaults.
func (c *ConfigDoc) Options(f OptionFlags) (lhm.Options, error) {
	opts := lhm.Options{AtomicSwitch: c.AtomicSwitch, Start: f.Start, Limit: f.Limit}

	switch util.TrimAndLower(f.AtomicSwitch) {
	case "":
	case "true", "yes", "1":
		opts.AtomicSwitch = lhm.Bool(true)
	case "false", "no", "0":
		opts.AtomicSwitch = lhm.Bool(false)
	default:
		return lhm.Options{}, fmt.Errorf("invalid --atomic-switch value %q (valid: true, false)", f.AtomicSwitch)
	}

	opts.ThrottlerName = util.TrimWithDefault(f.Throttler, strings.TrimSpace(c.Throttler.Name))
	if len(c.Throttler.Options) > 0 || f.Stride > 0 || f.Delay > 0 {
		opts.ThrottlerOptions = map[string]interface{}{}
		for k, v := range c.Throttler.Options {
			opts.ThrottlerOptions[k] = v
		}
		if f.Stride > 0 {
			opts.ThrottlerOptions["stride"] = f.Stride
		}
		if f.Delay > 0 {
			opts.ThrottlerOptions["delay"] = f.Delay
		}
		if opts.ThrottlerName == "" {
			opts.ThrottlerName = "time"
		}
	}
	return opts, nil
}

// loadDotEnv loads variables from path when the file exists. Variables
// already set in the environment win.
func loadDotEnv(path string) error {
	p, ok := util.TrimEmptyCheck(path)
	if !ok {
		return nil
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load %s: %w", p, err)
	}
	return nil
}
