// Package desired implements the desired-state builder and family-link
// filler: turning a parsed backup document's instance nodes into a linked
// list of descriptors with handles resolved against the live instance
// store, and parent/child links filled from OIDs alone.
package desired

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okt-galaktionov/confd/internal/backupxml"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/value"
)

var (
	ErrInvalid  = errors.New("invalid")
	ErrNotFound = errors.New("not found")
)

// Descriptor is one entry of the desired-state list: an instance that
// should exist, with its resolved object class, handle (Invalid if the
// instance does not yet exist live), and desired value.
type Descriptor struct {
	OID    oid.OID
	Object *schema.Object
	Handle instance.Handle
	Value  value.Value

	// Added is set by the restore loop once this instance exists or has
	// been created during the current pass.
	Added bool

	// Father, FirstSon, NextBrother mirror the OID hierarchy, filled by
	// FillFamilyLinks.
	Father      *Descriptor
	FirstSon    *Descriptor
	NextBrother *Descriptor
}

// Build walks doc's instance nodes in document order, resolving each to its
// object class (by stripping key segments from the instance OID) and, if
// already live, its existing handle. A missing value on a typed object is
// ErrNotFound (ENOENT); a value given for a none-typed object is
// ErrInvalid. Family links are filled before Build returns.
func Build(doc *backupxml.Document, reg *schema.Registry, store instance.Store) ([]*Descriptor, error) {
	list := make([]*Descriptor, 0, len(doc.Instances))
	for _, in := range doc.Instances {
		o := oid.OID(in.OID)
		classOID := oid.ClassOf(o)
		obj, ok := reg.Find(classOID)
		if !ok {
			return nil, fmt.Errorf("desired-state %s: %w: unregistered object %s", o, ErrNotFound, classOID)
		}

		var v value.Value
		switch {
		case in.HasValue && obj.ValueType == value.KindNone:
			return nil, fmt.Errorf("desired-state %s: %w: value given for none-typed object", o, ErrInvalid)
		case in.HasValue:
			parsed, err := value.Parse(obj.ValueType, in.Value)
			if err != nil {
				return nil, fmt.Errorf("desired-state %s: %w: %v", o, ErrInvalid, err)
			}
			v = parsed
		case obj.ValueType != value.KindNone && obj.ValueType != value.KindUnspecified:
			return nil, fmt.Errorf("desired-state %s: %w: missing value for typed object", o, ErrNotFound)
		}

		h := instance.Invalid
		if existing, ok := store.Find(o); ok {
			h = existing
		}

		list = append(list, &Descriptor{OID: o, Object: obj, Handle: h, Value: v})
	}

	if err := fillFamilyLinks(list); err != nil {
		return nil, err
	}
	return list, nil
}

// fillFamilyLinks sorts a copy of list by the child-first order and derives
// father/son/brother links purely from OID depth. It mutates the
// Descriptors in place (father/son/brother are the only fields touched)
// and leaves list's original order untouched.
func fillFamilyLinks(list []*Descriptor) error {
	sorted := make([]*Descriptor, len(list))
	copy(sorted, list)
	sortByOID(sorted)

	var prev *Descriptor
	// prevDepth starts at 0, one level above any top-level entry (which,
	// under the leading-'/' OID convention, sits at depth 1): this makes
	// the first entry's depth==prevDepth+1 the common case, with prev==nil
	// naturally yielding no father.
	prevDepth := 0

	for _, cur := range sorted {
		depth := cur.OID.Depth()

		var parent *Descriptor
		switch {
		case depth == prevDepth+1:
			parent = prev
		case depth <= prevDepth:
			steps := prevDepth - depth + 1
			walker := prev
			for j := 0; j < steps; j++ {
				if walker == nil {
					return fmt.Errorf("desired-state %s: %w: broken father chain", cur.OID, ErrInvalid)
				}
				walker = walker.Father
			}
			parent = walker
		default: // depth > prevDepth+1
			return fmt.Errorf("desired-state %s: %w: instance has no immediate parent", cur.OID, ErrInvalid)
		}

		if parent != nil {
			if !oid.IsPrefixOf(parent.OID, cur.OID) {
				return fmt.Errorf("desired-state %s: %w: candidate parent %s is not a prefix", cur.OID, ErrInvalid, parent.OID)
			}
			cur.Father = parent
			cur.NextBrother = parent.FirstSon
			parent.FirstSon = cur
		}

		prev = cur
		prevDepth = depth
	}
	return nil
}

func sortByOID(list []*Descriptor) {
	sort.SliceStable(list, func(i, j int) bool { return oid.Less(list[i].OID, list[j].OID) })
}
