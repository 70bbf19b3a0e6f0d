package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
)

// BackupHandler runs a Backup request. Implemented by the backup operations
// engine; declared here so the dispatcher doesn't depend on it directly.
type BackupHandler interface {
	Execute(ctx context.Context, req *Backup) error
}

// Dispatcher serialises messages onto the database layer: registry
// mutations (REGISTER, ADD_DEPENDENCY), instance mutations (ADD, SET, DEL,
// COMMIT), and backup operations. Every Process call is a plain synchronous
// function call; the caller blocks until the store has replied and the
// message's Status field is filled in.
type Dispatcher struct {
	Registry *schema.Registry
	Store    instance.Store
	Backup   BackupHandler
}

// Process dispatches msg, writes its Status field, and returns the error
// the operation failed with, if any. msg must be a pointer to one of the
// message structs in this package.
func (d *Dispatcher) Process(ctx context.Context, msg any) error {
	err := d.dispatch(ctx, msg)
	if _, ok := msg.(*Backup); ok && d.Backup != nil {
		// The backup handler classifies its own outcomes (verify
		// divergence has no mapping here) and has already stamped Status.
		return err
	}
	setStatus(msg, statusOf(err))
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case *Register:
		def := schema.Definition{
			OID:          m.OID,
			ValueType:    m.Type,
			Access:       m.Access,
			Volatile:     m.Volatile,
			Unit:         m.Unit,
			NoParentDep:  m.NoParentDep,
			Default:      m.DefVal,
			HasDefault:   m.HasDefVal,
			Substitution: m.Substitution,
		}
		_, err := d.Registry.Register(def)
		return err
	case *AddDependency:
		scope := schema.ScopeInstance
		if m.ObjectWide {
			scope = schema.ScopeObjectWide
		}
		return d.Registry.AddDependency(m.DependantOID, m.TargetOID, scope)
	case *Add:
		o := oid.OID(m.OID)
		obj, ok := d.Registry.Find(oid.ClassOf(o))
		if !ok {
			return fmt.Errorf("bus: add %s: %w: unregistered object %s", m.OID, schema.ErrNotFound, oid.ClassOf(o))
		}
		_, err := d.Store.Add(ctx, o, obj, m.Value, m.Local, d.unitOf(o))
		return err
	case *Set:
		h := instance.Handle(m.Handle)
		var unit oid.OID
		if m.Local {
			if inst, ok := d.Store.Get(h); ok {
				unit = d.unitOf(inst.OID)
			}
		}
		return d.Store.Set(ctx, h, m.Value, m.Local, unit)
	case *Del:
		return d.Store.Del(ctx, instance.Handle(m.Handle), m.Local)
	case *Commit:
		return d.Store.Commit(ctx, oid.OID(m.OID))
	case *Backup:
		if d.Backup == nil {
			return fmt.Errorf("bus: %w: no backup handler wired", schema.ErrInvalid)
		}
		return d.Backup.Execute(ctx, m)
	default:
		return fmt.Errorf("bus: %w: unrecognized message %T", schema.ErrInvalid, msg)
	}
}

// unitOf returns the OID of o's enclosing unit instance: the shortest
// prefix of o whose object class is a unit, or "" when o is outside any
// unit subtree. Local writes are buffered under this key until COMMIT.
func (d *Dispatcher) unitOf(o oid.OID) oid.OID {
	s := string(o)
	for i := 0; i < len(s); i++ {
		if s[i] != '/' && i != len(s)-1 {
			continue
		}
		end := i
		if i == len(s)-1 {
			end = len(s)
		}
		prefix := oid.OID(s[:end])
		if prefix == "" {
			continue
		}
		if obj, ok := d.Registry.Find(oid.ClassOf(prefix)); ok && obj.Unit {
			return prefix
		}
	}
	return ""
}

// setStatus writes st into msg's Status field.
func setStatus(msg any, st Status) {
	switch m := msg.(type) {
	case *Register:
		m.Status = st
	case *AddDependency:
		m.Status = st
	case *Add:
		m.Status = st
	case *Set:
		m.Status = st
	case *Del:
		m.Status = st
	case *Commit:
		m.Status = st
	case *Backup:
		m.Status = st
	}
}

// statusOf maps an operation's error to the wire result code.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, schema.ErrNotFound), errors.Is(err, instance.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, schema.ErrNoMem):
		return StatusNoMem
	case errors.Is(err, instance.ErrAlready):
		return StatusAlready
	case errors.Is(err, instance.ErrPerm):
		return StatusPerm
	default:
		return StatusInvalid
	}
}
