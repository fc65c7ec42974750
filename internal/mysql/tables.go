package mysql

import (
	"context"
	"fmt"
	"strings"
)

// TableExists reports whether the current schema has a table called name.
func TableExists(ctx context.Context, conn Connection, name string) (bool, error) {
	names, err := conn.SelectValues(ctx, "show tables like "+quoteLike(name))
	if err != nil {
		return false, fmt.Errorf("look up table %s: %w", name, err)
	}
	// like treats _ as a wildcard
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func quoteLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
