package schema

import "testing"

func TestRegisterDuplicateOID(t *testing.T) {
	r := New()
	if _, err := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err == nil {
		t.Fatal("expected error on duplicate oid")
	}
}

func TestRegisterUnknownValueType(t *testing.T) {
	r := New()
	if _, err := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "frobnicate"}); err == nil {
		t.Fatal("expected error on unrecognized value type")
	}
}

func TestOrdinalMonotonicityOnParent(t *testing.T) {
	r := New()
	a, err := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "none"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Register(Definition{OID: "/a/b", Access: "read-create", ValueType: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if !(a.Ordinal < b.Ordinal) {
		t.Fatalf("expected parent ordinal %d < child ordinal %d", a.Ordinal, b.Ordinal)
	}
}

// For every dependency edge A -> B, ord(A) < ord(B) must hold at all
// times; adding dependencies preserves this even when B already existed
// with a lower ordinal than A.
func TestOrdinalMonotonicityOnDependency(t *testing.T) {
	r := New()
	a, err := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "none", NoParentDep: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Register(Definition{OID: "/b", Access: "read-create", ValueType: "none", NoParentDep: true})
	if err != nil {
		t.Fatal(err)
	}
	// Force b to have a lower ordinal than a before wiring the dependency.
	if b.Ordinal >= a.Ordinal {
		b.Ordinal = 0
		a.Ordinal = 5
	}

	if err := r.AddDependency("/a", "/b", ScopeInstance); err != nil {
		t.Fatal(err)
	}
	if !(a.Ordinal < b.Ordinal) {
		t.Fatalf("expected ord(a)=%d < ord(b)=%d after AddDependency", a.Ordinal, b.Ordinal)
	}
}

func TestOrdinalMonotonicityTransitive(t *testing.T) {
	r := New()
	a, _ := r.Register(Definition{OID: "/a", Access: "read-create", ValueType: "none", NoParentDep: true})
	b, _ := r.Register(Definition{OID: "/b", Access: "read-create", ValueType: "none", NoParentDep: true})
	c, _ := r.Register(Definition{OID: "/c", Access: "read-create", ValueType: "none", NoParentDep: true})

	if err := r.AddDependency("/b", "/c", ScopeInstance); err != nil {
		t.Fatal(err)
	}
	// Now force a to have a huge ordinal and wire a -> b; b and its
	// downstream c must both be bumped above a.
	a.Ordinal = 100
	if err := r.AddDependency("/a", "/b", ScopeInstance); err != nil {
		t.Fatal(err)
	}
	if !(a.Ordinal < b.Ordinal) {
		t.Fatalf("ord(a)=%d should be < ord(b)=%d", a.Ordinal, b.Ordinal)
	}
	if !(b.Ordinal < c.Ordinal) {
		t.Fatalf("ord(b)=%d should be < ord(c)=%d", b.Ordinal, c.Ordinal)
	}
}

func TestUnitPartDerivation(t *testing.T) {
	r := New()
	if _, err := r.Register(Definition{OID: "/u", Access: "read-create", ValueType: "none", Unit: true}); err != nil {
		t.Fatal(err)
	}
	child, err := r.Register(Definition{OID: "/u/x", Access: "read-create", ValueType: "int"})
	if err != nil {
		t.Fatal(err)
	}
	if !child.UnitPart {
		t.Fatal("expected /u/x to be unit_part since its parent /u is a unit")
	}
}

func TestNoParentDepSuppressesImplicitDependency(t *testing.T) {
	r := New()
	parent, err := r.Register(Definition{OID: "/p", Access: "read-create", ValueType: "none"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := r.Register(Definition{OID: "/p/c", Access: "read-create", ValueType: "none", NoParentDep: true})
	if err != nil {
		t.Fatal(err)
	}
	if parent.HasDependants() {
		t.Fatal("parent should have no dependants when the child sets no_parent_dep")
	}
	if len(parent.Dependencies) != 0 || child.HasDependants() {
		t.Fatal("no implicit parent -> child dependency edge should exist when the child sets no_parent_dep")
	}
}
