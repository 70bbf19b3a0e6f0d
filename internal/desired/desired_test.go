package desired

import (
	"context"
	"testing"

	"github.com/okt-galaktionov/confd/internal/backupxml"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/value"
)

func TestBuildResolvesExistingHandle(t *testing.T) {
	reg := schema.New()
	obj, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"})
	if err != nil {
		t.Fatal(err)
	}
	store := instance.NewInMemory()
	h, err := store.Add(context.Background(), "/a:1", obj, value.Value{Kind: value.KindInt, Int: 0}, false, "")
	if err != nil {
		t.Fatal(err)
	}

	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{{OID: "/a:1", HasValue: true, Value: "0"}}}
	list, err := Build(doc, reg, store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(list) != 1 || list[0].Handle != h {
		t.Fatalf("expected handle %v to be resolved, got %+v", h, list)
	}
}

func TestBuildMissingValueIsNotFound(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	store := instance.NewInMemory()

	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{{OID: "/a:1"}}}
	if _, err := Build(doc, reg, store); err == nil {
		t.Fatal("expected ENOENT-equivalent error for missing value on typed object")
	}
}

func TestFillFamilyLinksParentChild(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/p", Access: "read-create", ValueType: "none"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/p/c", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	store := instance.NewInMemory()

	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/p:1/c:1", HasValue: true, Value: "1"},
		{OID: "/p:1"},
	}}
	list, err := Build(doc, reg, store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var parent, child *Descriptor
	for _, d := range list {
		switch d.OID {
		case "/p:1":
			parent = d
		case "/p:1/c:1":
			child = d
		}
	}
	if parent == nil || child == nil {
		t.Fatalf("expected both entries present, got %+v", list)
	}
	if child.Father != parent {
		t.Fatalf("expected child's father to be parent, got %+v", child.Father)
	}
	if parent.FirstSon != child {
		t.Fatalf("expected parent's first son to be child, got %+v", parent.FirstSon)
	}
}

func TestFillFamilyLinksMissingIntermediateLevelIsInvalid(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/p", Access: "read-create", ValueType: "none"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/p/q", Access: "read-create", ValueType: "none"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/p/q/c", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	store := instance.NewInMemory()

	// /p:1/q:1/c:1 appears with no preceding entry at all, so its depth (3)
	// exceeds the initial prevDepth+1 (0+1=1): no immediate parent.
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/p:1/q:1/c:1", HasValue: true, Value: "1"},
	}}
	if _, err := Build(doc, reg, store); err == nil {
		t.Fatal("expected error for missing intermediate level")
	}
}
