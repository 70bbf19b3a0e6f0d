// Package connstring renders the data source name the sqlite backend
// hands to database/sql, from the db.* configuration keys. It is kept
// separate from internal/storage so the backend can depend on it without
// an import cycle back through the storage factory.
package connstring

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBusyTimeout is how long a connection waits on a locked database
// before failing, when db.busy-timeout is not configured.
const DefaultBusyTimeout = 30 * time.Second

// SQLite describes a connection to the database file named by db.path.
type SQLite struct {
	// Path is the database file, as configured by db.path. A leading
	// "file:" is tolerated and stripped.
	Path string

	// ReadOnly opens the database without write access, for inspection
	// tooling.
	ReadOnly bool

	// BusyTimeout overrides DefaultBusyTimeout when positive, as
	// configured by db.busy-timeout.
	BusyTimeout time.Duration
}

// DSN renders the connection string: a file: URI carrying the
// busy_timeout and foreign_keys pragmas and sqlite-native time
// formatting. An empty Path yields an empty DSN.
func (c SQLite) DSN() string {
	path := strings.TrimPrefix(strings.TrimSpace(c.Path), "file:")
	if path == "" {
		return ""
	}

	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}

	params := make([]string, 0, 4)
	if c.ReadOnly {
		params = append(params, "mode=ro")
	}
	params = append(params,
		fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds()),
		"_pragma=foreign_keys(ON)",
		"_time_format=sqlite",
	)
	return "file:" + path + "?" + strings.Join(params, "&")
}
