package main

import (
	"context"

	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/storage"
)

// openStore delegates to the storage factory (internal/storage.Open),
// resolving the "memory"/"sqlite" driver string and the db.* settings.
func openStore(ctx context.Context, driver, path string, reg *schema.Registry) (instance.Store, error) {
	opts := storage.Options{Driver: driver, Path: path, BusyTimeout: cfg.DBBusyTimeout()}
	return storage.Open(ctx, opts, reg)
}
