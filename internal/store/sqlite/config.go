package sqlite

import (
	"fmt"

	"github.com/loykin/lhm/internal/constants"
	"github.com/loykin/lhm/internal/util"
)

// SQLite configuration constants
const (
	busyTimeoutMS    = 5000 // 5 seconds in milliseconds
	foreignKeysParam = "_fk=1"
)

type Config struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": util.TrimWithDefault(c.Path, constants.DefaultHistoryDBFile),
	}
}

// DSN returns the modernc sqlite DSN for the configured file.
func (c *Config) DSN() string {
	path := util.TrimWithDefault(c.Path, constants.DefaultHistoryDBFile)
	return fmt.Sprintf("file:%s?_busy_timeout=%d&%s", path, busyTimeoutMS, foreignKeysParam)
}
