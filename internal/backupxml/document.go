// Package backupxml implements the backup document codec: reading a
// <backup> document into a parsed description of objects and instances,
// and writing one back out from a registry and instance store.
package backupxml

import "github.com/okt-galaktionov/confd/internal/schema"

// DependencyRef is a parsed <depends oid=... scope=.../> sub-entry.
type DependencyRef struct {
	OID   string
	Scope schema.Scope
}

// ObjectDef is a parsed <object> entry, including its nested dependencies.
type ObjectDef struct {
	Def          schema.Definition
	Dependencies []DependencyRef
}

// InstanceNode is a parsed <instance oid=... value=.../> entry.
type InstanceNode struct {
	OID      string
	HasValue bool
	Value    string
}

// Document is the full parse result of a <backup> document: objects (with
// their dependency sub-nodes) followed by instances.
type Document struct {
	Objects   []ObjectDef
	Instances []InstanceNode
}
