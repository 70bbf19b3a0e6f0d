package backupxml

import (
	"errors"
	"fmt"
	"io"

	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/xmlnode"
)

// ErrInvalid marks a malformed backup document.
var ErrInvalid = errors.New("invalid backup document")

// Read parses a <backup> document: a root whose children are <object>
// entries (each with optional <depends> sub-entries) followed by
// <instance> entries. Any other top-level tag is ErrInvalid.
func Read(r io.Reader) (*Document, error) {
	root, err := xmlnode.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if root.Tag() != "backup" {
		return nil, fmt.Errorf("read backup: %w: root element is %q, want \"backup\"", ErrInvalid, root.Tag())
	}

	doc := &Document{}
	for _, child := range root.Children() {
		switch child.Tag() {
		case "object":
			od, err := parseObject(child)
			if err != nil {
				return nil, err
			}
			doc.Objects = append(doc.Objects, od)
		case "instance":
			in, err := parseInstance(child)
			if err != nil {
				return nil, err
			}
			doc.Instances = append(doc.Instances, in)
		default:
			return nil, fmt.Errorf("read backup: %w: unexpected element <%s>", ErrInvalid, child.Tag())
		}
	}
	return doc, nil
}

func parseObject(n xmlnode.Node) (ObjectDef, error) {
	o, ok := n.Attr("oid")
	if !ok || o == "" {
		return ObjectDef{}, fmt.Errorf("read backup <object>: %w: missing oid", ErrInvalid)
	}

	accessStr, ok := n.Attr("access")
	if !ok {
		return ObjectDef{}, fmt.Errorf("read backup <object oid=%q>: %w: missing access", o, ErrInvalid)
	}
	if _, ok := schema.ParseAccess(accessStr); !ok {
		return ObjectDef{}, fmt.Errorf("read backup <object oid=%q>: %w: unrecognized access %q", o, ErrInvalid, accessStr)
	}

	def := schema.Definition{OID: o, Access: accessStr}

	if t, ok := n.Attr("type"); ok {
		def.ValueType = t
	}
	if d, ok := n.Attr("default"); ok {
		def.Default = d
		def.HasDefault = true
	}
	if v, ok := n.Attr("volatile"); ok {
		b, err := parseBoolAttr("volatile", o, v)
		if err != nil {
			return ObjectDef{}, err
		}
		def.Volatile = b
	}
	if u, ok := n.Attr("unit"); ok {
		b, err := parseBoolAttr("unit", o, u)
		if err != nil {
			return ObjectDef{}, err
		}
		def.Unit = b
	}
	if pd, ok := n.Attr("parent-dep"); ok {
		if pd != "no" && pd != "yes" {
			return ObjectDef{}, fmt.Errorf("read backup <object oid=%q>: %w: unrecognized parent-dep %q", o, ErrInvalid, pd)
		}
		def.NoParentDep = pd == "no"
	}

	od := ObjectDef{Def: def}
	for _, child := range n.Children() {
		if child.Tag() != "depends" {
			return ObjectDef{}, fmt.Errorf("read backup <object oid=%q>: %w: unexpected child <%s>", o, ErrInvalid, child.Tag())
		}
		if len(child.Children()) != 0 {
			return ObjectDef{}, fmt.Errorf("read backup <depends>: %w: must have no children", ErrInvalid)
		}
		dOID, ok := child.Attr("oid")
		if !ok || dOID == "" {
			return ObjectDef{}, fmt.Errorf("read backup <depends>: %w: missing oid", ErrInvalid)
		}
		scopeStr, _ := child.Attr("scope")
		scope, ok := schema.ParseScope(scopeStr)
		if !ok {
			return ObjectDef{}, fmt.Errorf("read backup <depends oid=%q>: %w: unrecognized scope %q", dOID, ErrInvalid, scopeStr)
		}
		od.Dependencies = append(od.Dependencies, DependencyRef{OID: dOID, Scope: scope})
	}
	return od, nil
}

func parseBoolAttr(attr, oid, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("read backup <object oid=%q>: %w: unrecognized %s %q", oid, ErrInvalid, attr, v)
	}
}

func parseInstance(n xmlnode.Node) (InstanceNode, error) {
	o, ok := n.Attr("oid")
	if !ok || o == "" {
		return InstanceNode{}, fmt.Errorf("read backup <instance>: %w: missing oid", ErrInvalid)
	}
	if len(n.Children()) != 0 {
		return InstanceNode{}, fmt.Errorf("read backup <instance oid=%q>: %w: must have no children", o, ErrInvalid)
	}
	v, has := n.Attr("value")
	return InstanceNode{OID: o, Value: v, HasValue: has}, nil
}
