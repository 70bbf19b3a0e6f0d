package backupop

import (
	"fmt"
	"sort"

	"github.com/okt-galaktionov/confd/internal/backupxml"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
)

// ensureObjects registers any object from the backup document's <object>
// entries that the registry doesn't already know about, then wires their
// <depends> sub-entries. A database layer normally populates the registry
// independently via REGISTER at schema load, but a backup file is also a
// complete schema dump, so restoring into a cold registry (disaster
// recovery, or a fresh test run) must be able to bootstrap the schema from
// the file itself. Objects already
// present are left untouched; this makes the common case (registry already
// populated by the database layer) a no-op pass over defs.
//
// Objects are registered parent-first (oid.Less order) so schema.Register's
// parent lookup always finds an already-registered ancestor; dependencies
// are wired in a second pass since a dependency's target may be declared
// later in document order than its source.
func (e *Engine) ensureObjects(defs []backupxml.ObjectDef) error {
	return RegisterObjects(e.Registry, defs)
}

// RegisterObjects registers every object in defs that reg doesn't already
// know about and wires their dependencies, in the same parent-first,
// objects-then-dependencies order Engine.ensureObjects uses. Exported so a
// CLI entry point can bootstrap a fresh registry straight from a backup
// file's <object> entries before the instance store is even opened (a
// durable store's hydration needs the registry populated first to resolve
// each persisted row's class).
func RegisterObjects(reg *schema.Registry, defs []backupxml.ObjectDef) error {
	sorted := make([]backupxml.ObjectDef, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return oid.Less(oid.OID(sorted[i].Def.OID), oid.OID(sorted[j].Def.OID)) })

	for _, od := range sorted {
		if _, ok := reg.Find(oid.OID(od.Def.OID)); ok {
			continue
		}
		if _, err := reg.Register(od.Def); err != nil {
			return fmt.Errorf("backupop: register %s from backup file: %w", od.Def.OID, err)
		}
	}

	for _, od := range sorted {
		for _, dep := range od.Dependencies {
			if dependencyExists(reg, od.Def.OID, dep.OID) {
				continue
			}
			objectWide := dep.Scope == schema.ScopeObjectWide
			if err := reg.AddDependency(od.Def.OID, dep.OID, scopeOf(objectWide)); err != nil {
				return fmt.Errorf("backupop: wire dependency %s -> %s from backup file: %w", od.Def.OID, dep.OID, err)
			}
		}
	}
	return nil
}

func scopeOf(objectWide bool) schema.Scope {
	if objectWide {
		return schema.ScopeObjectWide
	}
	return schema.ScopeInstance
}

// dependencyExists reports whether source already declares a dependency on
// target, so re-loading the same backup file twice never double-registers
// the edge.
func dependencyExists(reg *schema.Registry, sourceOID, targetOID string) bool {
	obj, ok := reg.Find(oid.OID(sourceOID))
	if !ok {
		return false
	}
	for _, dep := range obj.Dependencies {
		if dep.Target.OID == oid.OID(targetOID) {
			return true
		}
	}
	return false
}
