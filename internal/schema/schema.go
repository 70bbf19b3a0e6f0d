// Package schema implements the object registry: the schema of object
// classes, their access mode, volatility, unit flag, inter-object
// dependencies, and topological ordinal.
package schema

import (
	"errors"
	"fmt"

	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/value"
)

// Access is the object's access mode.
type Access int

const (
	AccessReadOnly Access = iota
	AccessReadCreate
	AccessReadWrite
)

func ParseAccess(s string) (Access, bool) {
	switch s {
	case "read-only", "read_only":
		return AccessReadOnly, true
	case "read-create", "read_create":
		return AccessReadCreate, true
	case "read-write", "read_write":
		return AccessReadWrite, true
	default:
		return 0, false
	}
}

func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read-only"
	case AccessReadCreate:
		return "read-create"
	case AccessReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Scope is a dependency's reach: instance-scope means adding/removing any
// instance of the source may invalidate instances of the target;
// object-wide means the entire class is affected.
type Scope int

const (
	ScopeInstance Scope = iota
	ScopeObjectWide
)

func ParseScope(s string) (Scope, bool) {
	switch s {
	case "", "instance":
		return ScopeInstance, true
	case "object", "object-wide", "object_wide":
		return ScopeObjectWide, true
	default:
		return 0, false
	}
}

// Dependency is a directed edge object -> object with a scope bit.
type Dependency struct {
	Target *Object
	Scope  Scope
}

// Object is a schema node (class); immutable after registration except for
// the ordinal, which the registry may bump to preserve monotonicity when
// new dependency edges are added.
type Object struct {
	OID         oid.OID
	ValueType   value.Kind
	Access      Access
	Volatile    bool
	Unit        bool
	NoParentDep bool
	Default     *value.Value
	Ordinal     uint32

	// UnitPart is true iff some ancestor has Unit=true. Derived at
	// registration time and whenever the parent link changes.
	UnitPart bool

	// Dependencies this object declares on other objects.
	Dependencies []Dependency

	// dependants is the reverse index: objects that declared a
	// dependency on this one. Used by the restore loop and deletion
	// planner to decide has_deps.
	dependants []*Object

	// Tree links mirroring the OID hierarchy of classes.
	Parent      *Object
	FirstChild  *Object
	NextSibling *Object
}

// HasDependants reports whether any other object depends on this one.
func (o *Object) HasDependants() bool {
	return len(o.dependants) > 0
}

// Dependants returns every object that declared a dependency on o.
func (o *Object) Dependants() []*Object {
	return o.dependants
}

// Definition is the REGISTER-shaped input to Register.
type Definition struct {
	OID         string
	ValueType   string // wire type name; "" or "unspecified" allowed
	Access      string
	Volatile    bool
	Unit        bool
	NoParentDep bool
	Default     string
	HasDefault  bool
	// Substitution is always emitted false by REGISTER callers today;
	// reserved.
	Substitution bool
}

var (
	ErrInvalid  = errors.New("invalid")
	ErrNoMem    = errors.New("no memory")
	ErrNotFound = errors.New("not found")
)

// Registry is the schema of object classes, keyed by OID.
type Registry struct {
	byOID map[oid.OID]*Object
	root  *Object
}

// New creates a registry with its (always-present, never-emitted) root
// object at OID "".
func New() *Registry {
	root := &Object{OID: "", Access: AccessReadOnly, ValueType: value.KindNone}
	return &Registry{
		byOID: map[oid.OID]*Object{"": root},
		root:  root,
	}
}

// GetRoot returns the registry's root object.
func (r *Registry) GetRoot() *Object {
	return r.root
}

// Find looks up an object by OID.
func (r *Registry) Find(o oid.OID) (*Object, bool) {
	obj, ok := r.byOID[o]
	return obj, ok
}

// All returns every registered object, including the root.
func (r *Registry) All() []*Object {
	out := make([]*Object, 0, len(r.byOID))
	for _, obj := range r.byOID {
		out = append(out, obj)
	}
	return out
}

// parentOID returns the OID of def's immediate parent in the object tree:
// everything up to (not including) the last '/'-delimited segment. The
// root object's OID ("") is the parent of any top-level object.
func parentOID(o oid.OID) oid.OID {
	s := string(o)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return oid.OID(s[:i])
		}
	}
	return ""
}

// Register adds a new object class to the registry. It fails with
// ErrInvalid on a duplicate OID or an unrecognized value type, and computes
// a provisional ordinal as max(parent's, all pre-existing dependency
// targets') + 1 — though at registration time an object has no
// dependencies yet, so its initial ordinal is simply parent's + 1.
func (r *Registry) Register(def Definition) (*Object, error) {
	if !oid.Valid(def.OID) {
		return nil, fmt.Errorf("register %q: %w: empty oid", def.OID, ErrInvalid)
	}
	key := oid.OID(def.OID)
	if _, exists := r.byOID[key]; exists {
		return nil, fmt.Errorf("register %q: %w: duplicate oid", def.OID, ErrInvalid)
	}

	vt := value.KindUnspecified
	if def.ValueType != "" {
		k, ok := value.ParseKind(def.ValueType)
		if !ok {
			return nil, fmt.Errorf("register %q: %w: unrecognized value type %q", def.OID, ErrInvalid, def.ValueType)
		}
		vt = k
	}

	access, ok := ParseAccess(def.Access)
	if !ok {
		return nil, fmt.Errorf("register %q: %w: unrecognized access %q", def.OID, ErrInvalid, def.Access)
	}

	var defVal *value.Value
	if def.HasDefault {
		v, err := value.Parse(vt, def.Default)
		if err != nil {
			return nil, fmt.Errorf("register %q: %w: %v", def.OID, ErrInvalid, err)
		}
		defVal = &v
	}

	parent := r.root
	if p, ok := r.byOID[parentOID(key)]; ok {
		parent = p
	}

	obj := &Object{
		OID:         key,
		ValueType:   vt,
		Access:      access,
		Volatile:    def.Volatile,
		Unit:        def.Unit,
		NoParentDep: def.NoParentDep,
		Default:     defVal,
		Ordinal:     parent.Ordinal + 1,
		UnitPart:    parent.Unit || parent.UnitPart,
		Parent:      parent,
	}

	r.byOID[key] = obj
	r.linkChild(parent, obj)

	// A parent/child relationship is itself a dependency unless
	// NoParentDep suppresses it: the attribute disables the implicit
	// parent-object-wide dependency edge that would otherwise make the
	// parent's ordinal a floor for the child's.
	if !def.NoParentDep && parent != r.root {
		if err := r.AddDependency(string(parent.OID), string(obj.OID), ScopeObjectWide); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

func (r *Registry) linkChild(parent, child *Object) {
	if parent.FirstChild == nil {
		parent.FirstChild = child
		return
	}
	sib := parent.FirstChild
	for sib.NextSibling != nil {
		sib = sib.NextSibling
	}
	sib.NextSibling = child
}

// AddDependency introduces a directed edge source -> target with the given
// scope. When the new edge would break ordinal monotonicity — every edge
// must satisfy ord(source) < ord(target) — the registry re-bumps ordinals
// across the target's transitive closure so the invariant holds again.
func (r *Registry) AddDependency(sourceOID, targetOID string, scope Scope) error {
	source, ok := r.byOID[oid.OID(sourceOID)]
	if !ok {
		return fmt.Errorf("add-dependency: %w: source %q not registered", ErrNotFound, sourceOID)
	}
	target, ok := r.byOID[oid.OID(targetOID)]
	if !ok {
		return fmt.Errorf("add-dependency: %w: target %q not registered", ErrNotFound, targetOID)
	}

	source.Dependencies = append(source.Dependencies, Dependency{Target: target, Scope: scope})
	target.dependants = append(target.dependants, source)

	if target.Ordinal <= source.Ordinal {
		r.bumpTransitiveClosure(target, source.Ordinal+1)
	}
	return nil
}

// bumpTransitiveClosure raises obj's ordinal to at least floor and
// propagates the bump along obj's dependency edges to its targets,
// transitively: a target whose ordinal is not above its source's is raised
// to the source's ordinal plus one and its own targets are revisited, so
// an object reached by several paths ends up above every source on them.
// Ordinals only ever increase. Each object is raised at most once per
// registered object within one call, which bounds the walk when the
// dependency graph genuinely contains a cycle (A depends on B depends on
// A), which monotonicity cannot be satisfied for but which registration
// never rejects — the restore loop's bounded outer iteration count is the
// system's actual defense against a cyclic schema, not this bump.
func (r *Registry) bumpTransitiveClosure(obj *Object, floor uint32) {
	if obj.Ordinal >= floor {
		return
	}
	obj.Ordinal = floor
	visits := map[*Object]int{obj: 1}
	limit := len(r.byOID)
	queue := []*Object{obj}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range cur.Dependencies {
			t := dep.Target
			if t.Ordinal > cur.Ordinal || visits[t] >= limit {
				continue
			}
			t.Ordinal = cur.Ordinal + 1
			visits[t]++
			queue = append(queue, t)
		}
	}
}
