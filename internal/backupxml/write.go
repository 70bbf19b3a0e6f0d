package backupxml

import (
	"io"
	"sort"

	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/value"
	"github.com/okt-galaktionov/confd/internal/xmlnode"
)

// WriteOptions controls what Write excludes besides the root and volatile
// instances.
type WriteOptions struct {
	// AgentSubtrees are OID prefixes excluded from the instance dump
	// because they belong to the agent subtree, synchronized out-of-band.
	AgentSubtrees []oid.OID

	// Subtrees restricts the instance dump to OIDs contained in one of
	// these prefixes; nil/empty means no restriction.
	Subtrees []oid.OID
}

// Write emits a <backup> document for reg and store: the root object
// skipped, then all descendant objects depth-first (with their
// dependencies as nested <depends> elements), then all instances
// depth-first, skipping the root instance, volatile instances, and
// instances under AgentSubtrees.
func Write(w io.Writer, reg *schema.Registry, store instance.Store, opts WriteOptions) error {
	xw := xmlnode.NewWriter(w)
	if err := xw.Open("backup", nil); err != nil {
		return err
	}

	for _, obj := range sortedObjects(reg) {
		if err := writeObject(xw, obj); err != nil {
			return err
		}
	}
	for _, inst := range sortedInstances(store) {
		if inst.OID == "" || inst.Object.Volatile {
			continue
		}
		if oid.ContainedIn(opts.AgentSubtrees, inst.OID) && len(opts.AgentSubtrees) > 0 {
			continue
		}
		if !oid.ContainedIn(opts.Subtrees, inst.OID) {
			continue
		}
		if err := writeInstance(xw, inst); err != nil {
			return err
		}
	}

	return xw.Close("backup")
}

// sortedObjects returns every non-root object in child-first (depth-first)
// order, so descendants always follow their ancestors in the emitted
// document.
func sortedObjects(reg *schema.Registry) []*schema.Object {
	all := reg.All()
	out := make([]*schema.Object, 0, len(all))
	for _, o := range all {
		if o.OID == "" {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return oid.Less(out[i].OID, out[j].OID) })
	return out
}

func sortedInstances(store instance.Store) []*instance.Instance {
	all := store.All()
	sort.Slice(all, func(i, j int) bool { return oid.Less(all[i].OID, all[j].OID) })
	return all
}

func writeObject(xw xmlnode.Writer, obj *schema.Object) error {
	attrs := []xmlnode.Attr{
		{Name: "oid", Value: string(obj.OID)},
		{Name: "access", Value: obj.Access.String()},
	}
	if obj.ValueType != value.KindUnspecified {
		attrs = append(attrs, xmlnode.Attr{Name: "type", Value: obj.ValueType.String()})
	}
	if obj.Default != nil {
		attrs = append(attrs, xmlnode.Attr{Name: "default", Value: value.Format(*obj.Default)})
	}
	if obj.Volatile {
		attrs = append(attrs, xmlnode.Attr{Name: "volatile", Value: "true"})
	}
	if obj.Unit {
		attrs = append(attrs, xmlnode.Attr{Name: "unit", Value: "true"})
	}
	if obj.NoParentDep {
		attrs = append(attrs, xmlnode.Attr{Name: "parent-dep", Value: "no"})
	}

	if len(obj.Dependencies) == 0 {
		return xw.Self("object", attrs)
	}
	if err := xw.Open("object", attrs); err != nil {
		return err
	}
	for _, dep := range obj.Dependencies {
		scope := "instance"
		if dep.Scope == schema.ScopeObjectWide {
			scope = "object"
		}
		if err := xw.Self("depends", []xmlnode.Attr{
			{Name: "oid", Value: string(dep.Target.OID)},
			{Name: "scope", Value: scope},
		}); err != nil {
			return err
		}
	}
	return xw.Close("object")
}

func writeInstance(xw xmlnode.Writer, inst *instance.Instance) error {
	attrs := []xmlnode.Attr{{Name: "oid", Value: string(inst.OID)}}
	if inst.Object.ValueType != value.KindNone {
		attrs = append(attrs, xmlnode.Attr{Name: "value", Value: value.Format(inst.Value)})
	}
	return xw.Self("instance", attrs)
}
