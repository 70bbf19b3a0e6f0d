// Package instance implements the live instance store: the set of live
// object instances, each bound to an object, with typed value,
// parent/child/sibling links, and a stable handle. The store is the only
// writer of live state; the restore loop never mutates live instances
// directly.
package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/value"
)

// Handle is an opaque stable identifier for a live instance. The zero value
// is invalid.
type Handle uint64

// Invalid is the zero Handle, meaning "no instance".
const Invalid Handle = 0

// Instance is a concrete live entry bound to an Object.
type Instance struct {
	OID    oid.OID
	Object *schema.Object
	Value  value.Value
	Handle Handle

	// Tree links mirroring the OID hierarchy.
	Father      *Instance
	FirstSon    *Instance
	NextBrother *Instance
}

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrAlready  = errors.New("already exists")
	ErrPerm     = errors.New("permission denied")
)

// Store is the contract the reconciliation core consumes: Find/Get/All/Size
// for reads, and the ADD/SET/DEL/COMMIT write verbs, serialized exactly
// like a real message bus would serialize them, except in-process and
// synchronous.
type Store interface {
	Find(o oid.OID) (Handle, bool)
	Get(h Handle) (*Instance, bool)
	All() []*Instance
	Size() int

	// Add and Set take an explicit unit key: when local is true the write
	// is buffered until Commit(ctx, unit) is called, rather than applied
	// immediately. unit is ignored when local is false. The restore loop
	// always supplies the OID of the unit instance whose commit boundary
	// is currently being filled.
	Add(ctx context.Context, o oid.OID, obj *schema.Object, v value.Value, local bool, unit oid.OID) (Handle, error)
	Set(ctx context.Context, h Handle, v value.Value, local bool, unit oid.OID) error
	Del(ctx context.Context, h Handle, local bool) error
	Commit(ctx context.Context, unit oid.OID) error
}

// InMemory is the default Store implementation: an in-process map keyed by
// stable handles, with an OID index for lookups. Local (uncommitted)
// writes are buffered per-OID-subtree and flushed on Commit.
type InMemory struct {
	mu       sync.Mutex
	byHandle map[Handle]*Instance
	byOID    map[oid.OID]Handle
	nextID   uint64

	// pending holds local writes (Add/Set/Del under local=true) keyed by
	// the committing unit OID, buffered until Commit flushes them.
	pending map[oid.OID][]func()

	// pendingByOID makes locally-queued-but-not-yet-committed Adds
	// visible as existing parents to later Adds in the same unit batch,
	// without exposing them through Find/Get/All before Commit.
	pendingByOID map[oid.OID]Handle
}

// NewInMemory creates an empty in-memory instance store.
func NewInMemory() *InMemory {
	return &InMemory{
		byHandle:     make(map[Handle]*Instance),
		byOID:        make(map[oid.OID]Handle),
		pending:      make(map[oid.OID][]func()),
		pendingByOID: make(map[oid.OID]Handle),
	}
}

func (s *InMemory) Find(o oid.OID) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byOID[o]
	return h, ok
}

func (s *InMemory) Get(h Handle) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byHandle[h]
	return inst, ok
}

func (s *InMemory) All() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instance, 0, len(s.byHandle))
	for _, inst := range s.byHandle {
		out = append(out, inst)
	}
	return out
}

func (s *InMemory) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHandle)
}

// Add creates a new instance bound to obj. If local is true the write is
// buffered under unit and only becomes visible to Find/Get/All after
// Commit is called for that unit's OID. Unless o is top-level, some
// ancestor of o must already be present (committed, or pending within the
// same yet-uncommitted batch) or Add fails with ErrNotFound — the missing
// parent condition the restore loop's inner retry exists to absorb.
func (s *InMemory) Add(_ context.Context, o oid.OID, obj *schema.Object, v value.Value, local bool, unit oid.OID) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, exists := s.byOID[o]; exists {
		return h, fmt.Errorf("add %s: %w", o, ErrAlready)
	}
	if h, pending := s.pendingByOID[o]; pending {
		// Already queued by an earlier, not-yet-committed pass over the
		// same unit; treat as idempotent rather than a duplicate.
		return h, nil
	}
	if cands := parentCandidates(o); len(cands) > 0 && !s.anyKnown(cands) {
		return Invalid, fmt.Errorf("add %s: %w: no parent instance present", o, ErrNotFound)
	}

	s.nextID++
	h := Handle(s.nextID)
	inst := &Instance{OID: o, Object: obj, Value: v, Handle: h}

	apply := func() {
		s.byHandle[h] = inst
		s.byOID[o] = h
		delete(s.pendingByOID, o)
		s.linkFamily(inst)
	}

	if local {
		s.pendingByOID[o] = h
		s.pending[unit] = append(s.pending[unit], apply)
	} else {
		apply()
	}
	return h, nil
}

// parentCandidates returns every ancestor OID obtainable by truncating o at
// each '/', nearest first. An empty result means o is top-level and has no
// parent requirement (its implicit parent is the always-present root).
func parentCandidates(o oid.OID) []oid.OID {
	s := string(o)
	var out []oid.OID
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' && i > 0 {
			out = append(out, oid.OID(s[:i]))
		}
	}
	return out
}

func (s *InMemory) anyKnown(oids []oid.OID) bool {
	for _, o := range oids {
		if _, ok := s.byOID[o]; ok {
			return true
		}
		if _, ok := s.pendingByOID[o]; ok {
			return true
		}
	}
	return false
}

// linkFamily attaches inst to its father by walking the OID up to the
// nearest already-present ancestor. This is a best-effort mirror of the
// live OID hierarchy; the desired-state family links (built by package
// desired) are authoritative for restore ordering.
func (s *InMemory) linkFamily(inst *Instance) {
	for _, parentOID := range parentCandidates(inst.OID) {
		if ph, ok := s.byOID[parentOID]; ok {
			parent := s.byHandle[ph]
			inst.Father = parent
			inst.NextBrother = parent.FirstSon
			parent.FirstSon = inst
			return
		}
	}
}

func (s *InMemory) Set(_ context.Context, h Handle, v value.Value, local bool, unit oid.OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.byHandle[h]
	if !ok {
		return fmt.Errorf("set: %w", ErrNotFound)
	}
	if inst.Object.Access == schema.AccessReadOnly {
		return fmt.Errorf("set %s: %w: object is read-only", inst.OID, ErrPerm)
	}

	apply := func() { inst.Value = v }
	if local {
		s.pending[unit] = append(s.pending[unit], apply)
	} else {
		apply()
	}
	return nil
}

func (s *InMemory) Del(_ context.Context, h Handle, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.byHandle[h]
	if !ok {
		return fmt.Errorf("del: %w", ErrNotFound)
	}
	if inst.Object.Access == schema.AccessReadOnly {
		return fmt.Errorf("del %s: %w: read-only instances cannot be deleted", inst.OID, ErrPerm)
	}

	if inst.Father != nil {
		// Unlink from the father's son list.
		if inst.Father.FirstSon == inst {
			inst.Father.FirstSon = inst.NextBrother
		} else {
			for sib := inst.Father.FirstSon; sib != nil; sib = sib.NextBrother {
				if sib.NextBrother == inst {
					sib.NextBrother = inst.NextBrother
					break
				}
			}
		}
	}

	delete(s.byHandle, h)
	delete(s.byOID, inst.OID)
	return nil
}

// Commit flushes all buffered local writes queued under o atomically in
// one pass. A Commit with no underlying change is a no-op.
func (s *InMemory) Commit(_ context.Context, o oid.OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fns, ok := s.pending[o]
	if !ok || len(fns) == 0 {
		return nil
	}
	for _, fn := range fns {
		fn()
	}
	delete(s.pending, o)
	return nil
}
