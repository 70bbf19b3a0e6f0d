package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/storage/connstring"
	"github.com/okt-galaktionov/confd/internal/storage/memory"
	"github.com/okt-galaktionov/confd/internal/storage/sqlite"
)

// Options carries the db.* configuration keys that pick and parameterize
// the backend.
type Options struct {
	Driver      string        // db.driver: "memory" (default) or "sqlite"
	Path        string        // db.path, sqlite only
	BusyTimeout time.Duration // db.busy-timeout, sqlite only
}

// Open builds the instance.Store for opts: "memory" (the default,
// process-lifetime only) or "sqlite" (durable, opened at opts.Path and
// hydrated from any previously persisted instances).
func Open(ctx context.Context, opts Options, reg *schema.Registry) (instance.Store, error) {
	switch opts.Driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		cs := connstring.SQLite{Path: opts.Path, BusyTimeout: opts.BusyTimeout}
		return sqlite.Open(ctx, cs, reg)
	default:
		return nil, fmt.Errorf("storage: unrecognized driver %q", opts.Driver)
	}
}
