package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
)

// ServerVersion returns the raw version() string of the server, e.g. "8.0.35-0ubuntu0.22.04.1".
func ServerVersion(ctx context.Context, conn Connection) (string, error) {
	v, _, err := conn.SelectValue(ctx, "select version()")
	if err != nil {
		return "", fmt.Errorf("read server version: %w", err)
	}
	return v, nil
}

// ParseVersion parses the numeric part of a version() string.
func ParseVersion(version string) (semver.Version, error) {
	numeric := strings.TrimSpace(version)
	if i := strings.IndexAny(numeric, "-+ "); i >= 0 {
		numeric = numeric[:i]
	}
	v, err := semver.ParseTolerant(numeric)
	if err != nil {
		return semver.Version{}, fmt.Errorf("unparseable mysql version %q: %w", version, err)
	}
	return v, nil
}

// SupportsAtomicSwitch reports whether a multi-table rename is safe to use for the
// cutover. Older 5.x releases could deadlock or lose the rename under metadata locks.
func SupportsAtomicSwitch(version string) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	switch v.Major {
	case 4:
		return v.Minor >= 2, nil
	case 5:
		switch v.Minor {
		case 1:
			return false, nil
		case 5:
			return v.Patch >= 62, nil
		case 6:
			return v.Patch >= 12, nil
		}
	}
	return true, nil
}
