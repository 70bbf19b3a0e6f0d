// Package memory provides the process-lifetime-only instance.Store backend:
// no persistence, state lost on restart. This is the default driver; the
// durable backends live in sibling packages (internal/storage/sqlite).
package memory

import "github.com/okt-galaktionov/confd/internal/instance"

// New returns a fresh, empty in-memory store.
func New() *instance.InMemory {
	return instance.NewInMemory()
}
