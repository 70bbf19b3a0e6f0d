package restore

import (
	"context"
	"errors"
	"testing"

	"github.com/okt-galaktionov/confd/internal/backupxml"
	"github.com/okt-galaktionov/confd/internal/desired"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/synctarget"
	"github.com/okt-galaktionov/confd/internal/value"
)

func build(t *testing.T, reg *schema.Registry, store instance.Store, doc *backupxml.Document) []*desired.Descriptor {
	t.Helper()
	list, err := desired.Build(doc, reg, store)
	if err != nil {
		t.Fatalf("desired.Build: %v", err)
	}
	return desired.Sort(nil, list)
}

// S1: empty backup, one pre-existing read-create instance -> one DEL.
func TestLoopDeletesUndesiredInstance(t *testing.T) {
	reg := schema.New()
	obj, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "string"})
	if err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	if _, err := store.Add(ctx, "/a:x", obj, value.Value{Kind: value.KindString, Str: "v"}, false, ""); err != nil {
		t.Fatal(err)
	}

	list := build(t, reg, store, &backupxml.Document{})

	if err := Loop(ctx, store, synctarget.Noop{}, list, nil, Options{}, nil); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if store.Size() != 0 {
		t.Fatalf("expected empty live state, got size %d", store.Size())
	}
}

// S2: pure add, object read-create int, backup lists one instance.
func TestLoopAddsNewInstance(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{{OID: "/a:1", HasValue: true, Value: "7"}}}
	list := build(t, reg, store, doc)

	if err := Loop(ctx, store, synctarget.Noop{}, list, nil, Options{}, nil); err != nil {
		t.Fatalf("Loop: %v", err)
	}

	h, ok := store.Find("/a:1")
	if !ok {
		t.Fatal("expected /a:1 to exist")
	}
	got, _ := store.Get(h)
	if got.Value.Int != 7 {
		t.Fatalf("expected value 7, got %d", got.Value.Int)
	}
}

// S3: unit commit. Object /u (unit) with two children; expect all three
// ADDs to land atomically via one commit.
func TestLoopUnitCommit(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/u", Access: "read-create", ValueType: "none", Unit: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/u/x", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/u/y", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/u:1"},
		{OID: "/u:1/x:1", HasValue: true, Value: "1"},
		{OID: "/u:1/y:1", HasValue: true, Value: "2"},
	}}
	list := build(t, reg, store, doc)

	if err := Loop(ctx, store, synctarget.Noop{}, list, nil, Options{}, nil); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if store.Size() != 3 {
		t.Fatalf("expected 3 live instances, got %d", store.Size())
	}
}

// S5: child precedes parent in document order; family-link filling and
// sorting must still let the inner loop converge.
func TestLoopMissingParentThenRecovery(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/p", Access: "read-create", ValueType: "none"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/p/c", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/p:1/c:1", HasValue: true, Value: "5"},
		{OID: "/p:1"},
	}}
	list := build(t, reg, store, doc)

	if err := Loop(ctx, store, synctarget.Noop{}, list, nil, Options{}, nil); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if _, ok := store.Find("/p:1/c:1"); !ok {
		t.Fatal("expected child to converge once parent existed")
	}
}

// delRecorder wraps a Store and records the OID of every instance a Del
// removes, in issue order.
type delRecorder struct {
	instance.Store
	dels []oid.OID
}

func (r *delRecorder) Del(ctx context.Context, h instance.Handle, local bool) error {
	if inst, ok := r.Store.Get(h); ok {
		r.dels = append(r.dels, inst.OID)
	}
	return r.Store.Del(ctx, h, local)
}

// Undesired instances delete in descending object-ordinal order: when a
// dependency edge /x -> /y bumps /y's ordinal above /x's, /y's instances
// are removed before /x's — the reverse of the ascending restore order.
func TestPlanAndDeleteOrdersByDescendingOrdinal(t *testing.T) {
	reg := schema.New()
	x, err := reg.Register(schema.Definition{OID: "/x", Access: "read-create", ValueType: "int"})
	if err != nil {
		t.Fatal(err)
	}
	y, err := reg.Register(schema.Definition{OID: "/y", Access: "read-create", ValueType: "int"})
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.AddDependency("/x", "/y", schema.ScopeInstance); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	if _, err := store.Add(ctx, "/x:1", x, value.Value{Kind: value.KindInt, Int: 1}, false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add(ctx, "/y:1", y, value.Value{Kind: value.KindInt, Int: 2}, false, ""); err != nil {
		t.Fatal(err)
	}

	rec := &delRecorder{Store: store}
	hasDeps, err := PlanAndDelete(ctx, rec, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("PlanAndDelete: %v", err)
	}
	if !hasDeps {
		t.Fatal("expected hasDeps: /y has a dependant class")
	}
	want := []oid.OID{"/y:1", "/x:1"}
	if len(rec.dels) != len(want) || rec.dels[0] != want[0] || rec.dels[1] != want[1] {
		t.Fatalf("DEL order = %v, want %v", rec.dels, want)
	}
}

// Children always delete before their parents, regardless of candidate
// iteration order.
func TestPlanAndDeleteRemovesChildrenFirst(t *testing.T) {
	reg := schema.New()
	p, err := reg.Register(schema.Definition{OID: "/p", Access: "read-create", ValueType: "none"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := reg.Register(schema.Definition{OID: "/p/c", Access: "read-create", ValueType: "int"})
	if err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	if _, err := store.Add(ctx, "/p:1", p, value.Value{}, false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add(ctx, "/p:1/c:1", c, value.Value{Kind: value.KindInt, Int: 3}, false, ""); err != nil {
		t.Fatal(err)
	}

	rec := &delRecorder{Store: store}
	if _, err := PlanAndDelete(ctx, rec, nil, nil, nil, nil); err != nil {
		t.Fatalf("PlanAndDelete: %v", err)
	}
	want := []oid.OID{"/p:1/c:1", "/p:1"}
	if len(rec.dels) != len(want) || rec.dels[0] != want[0] || rec.dels[1] != want[1] {
		t.Fatalf("DEL order = %v, want %v", rec.dels, want)
	}
}

// countingStore wraps a Store and counts the write messages issued
// through it.
type countingStore struct {
	instance.Store
	adds, sets, dels int
}

func (c *countingStore) Add(ctx context.Context, o oid.OID, obj *schema.Object, v value.Value, local bool, unit oid.OID) (instance.Handle, error) {
	c.adds++
	return c.Store.Add(ctx, o, obj, v, local, unit)
}

func (c *countingStore) Set(ctx context.Context, h instance.Handle, v value.Value, local bool, unit oid.OID) error {
	c.sets++
	return c.Store.Set(ctx, h, v, local, unit)
}

func (c *countingStore) Del(ctx context.Context, h instance.Handle, local bool) error {
	c.dels++
	return c.Store.Del(ctx, h, local)
}

// Restoring the same backup against an already-matching live state issues
// zero ADD/SET/DEL messages.
func TestLoopSecondRestoreIsIdempotent(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/a/b", Access: "read-create", ValueType: "string"}); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/a:1", HasValue: true, Value: "7"},
		{OID: "/a:1/b:1", HasValue: true, Value: "seven"},
	}}

	if err := Loop(ctx, store, synctarget.Noop{}, build(t, reg, store, doc), nil, Options{}, nil); err != nil {
		t.Fatalf("first Loop: %v", err)
	}

	counting := &countingStore{Store: store}
	if err := Loop(ctx, counting, synctarget.Noop{}, build(t, reg, store, doc), nil, Options{}, nil); err != nil {
		t.Fatalf("second Loop: %v", err)
	}
	if counting.adds != 0 || counting.sets != 0 || counting.dels != 0 {
		t.Fatalf("second restore issued %d ADD / %d SET / %d DEL, want none",
			counting.adds, counting.sets, counting.dels)
	}
}

// S4: a dependency edge triggers a ta_sync and a second outer pass.
func TestLoopDependencyCascadeSyncs(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/b", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddDependency("/a", "/b", schema.ScopeInstance); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/a:1", HasValue: true, Value: "1"},
		{OID: "/b:1", HasValue: true, Value: "2"},
	}}
	list := build(t, reg, store, doc)

	sync := &synctarget.Counting{}
	if err := Loop(ctx, store, sync, list, nil, Options{}, nil); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if sync.Calls == 0 {
		t.Fatal("expected at least one ta_sync call when a dependant object was added")
	}
}

// flipOnSync is a synctarget.Syncer fake that un-marks one descriptor as
// Added on every Sync call, simulating an agent republishing a value this
// engine just set and immediately invalidating it again — the perpetual
// oscillation S6 describes ("two objects with mutually dependent instances
// that each flip the other on every pass").
type flipOnSync struct {
	flip  *desired.Descriptor
	calls int
}

func (f *flipOnSync) Sync(context.Context, string) error {
	f.calls++
	f.flip.Added = false
	return nil
}

// S6: a dependency cascade that never stops firing must stop after
// DefaultMaxOuterIterations outer passes, WARN, and fail with ErrNotFound
// since the flipped entry never ends the operation Added.
func TestLoopConvergenceBoundStopsAfterMaxIterations(t *testing.T) {
	reg := schema.New()
	if _, err := reg.Register(schema.Definition{OID: "/a", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(schema.Definition{OID: "/b", Access: "read-create", ValueType: "int"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddDependency("/a", "/b", schema.ScopeInstance); err != nil {
		t.Fatal(err)
	}

	store := instance.NewInMemory()
	ctx := context.Background()
	doc := &backupxml.Document{Instances: []backupxml.InstanceNode{
		{OID: "/a:1", HasValue: true, Value: "1"},
		{OID: "/b:1", HasValue: true, Value: "2"},
	}}
	list := build(t, reg, store, doc)

	// /b is the dependency target; flipping it forces has_deps and thus a
	// ta_sync on every outer pass, without ever letting the operation
	// conclude with every descriptor Added.
	var bDesc *desired.Descriptor
	for _, d := range list {
		if d.OID == "/b:1" {
			bDesc = d
		}
	}
	if bDesc == nil {
		t.Fatal("expected /b:1 in the desired-state list")
	}

	sync := &flipOnSync{flip: bDesc}
	err := Loop(ctx, store, sync, list, nil, Options{MaxOuterIterations: 10}, nil)
	if err == nil {
		t.Fatal("expected Loop to fail after the outer iteration bound")
	}
	if !errors.Is(err, instance.ErrNotFound) {
		t.Fatalf("expected a wrapped ErrNotFound, got %v", err)
	}
	if sync.calls == 0 {
		t.Fatal("expected ta_sync to have been called at least once")
	}
}
