// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package dbutil

import (
	"fmt"
	"strings"
)

// SplitConnStr returns the driver and source for a database URL.
//
// postgres:// URLs are passed to the driver unchanged, sqlite3:// URLs
// are stripped down to the file path.
func SplitConnStr(s string) (driver string, source string, err error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("could not parse DB URL %s", s)
	}
	driver = parts[0]
	source = parts[1]

	switch driver {
	case "postgres":
		source = s // postgres wants full URLs
	case "sqlite3":
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
	return driver, source, nil
}
