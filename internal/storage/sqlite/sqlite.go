// Package sqlite provides a durable instance.Store: SQLite write-through
// persistence layered over an in-memory live store, so the database
// layer's state survives a process restart.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/storage/connstring"
	"github.com/okt-galaktionov/confd/internal/value"
)

// ErrNotFound wraps sql.ErrNoRows so callers outside this package never
// need to know about database/sql.
var ErrNotFound = errors.New("not found")

func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting a write run
// either standalone or inside Commit's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS objects (
	oid TEXT PRIMARY KEY,
	access TEXT NOT NULL,
	value_type TEXT NOT NULL,
	volatile INTEGER NOT NULL DEFAULT 0,
	unit INTEGER NOT NULL DEFAULT 0,
	no_parent_dep INTEGER NOT NULL DEFAULT 0,
	ordinal INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS dependencies (
	source_oid TEXT NOT NULL,
	target_oid TEXT NOT NULL,
	scope TEXT NOT NULL,
	PRIMARY KEY (source_oid, target_oid)
);
CREATE TABLE IF NOT EXISTS instances (
	handle INTEGER PRIMARY KEY,
	oid TEXT NOT NULL UNIQUE,
	class_oid TEXT NOT NULL,
	value_kind TEXT NOT NULL,
	value_text TEXT NOT NULL
);
`

type writeFunc func(ctx context.Context, exec execer) error

// Store is a durable instance.Store. Reads are served entirely from the
// embedded in-memory representation (no database round trip); every
// mutation that lands immediately (local=false) is written through to
// SQLite in the same call, and every mutation buffered under a unit's
// commit boundary is queued and flushed inside a single transaction when
// Commit(unit) runs.
type Store struct {
	*instance.InMemory

	mu      sync.Mutex
	db      *sql.DB
	pending map[oid.OID][]writeFunc
}

// Open opens (creating if necessary) the SQLite database cs describes,
// ensures the schema exists, and hydrates the in-memory store from any
// persisted rows, resolving each row's class against reg.
func Open(ctx context.Context, cs connstring.SQLite, reg *schema.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", cs.DSN())
	if err != nil {
		return nil, fmt.Errorf("storage/sqlite: open %s: %w", cs.Path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers; avoid pool contention on busy_timeout

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage/sqlite: create schema: %w", err)
	}

	s := &Store{
		InMemory: instance.NewInMemory(),
		db:       db,
		pending:  make(map[oid.OID][]writeFunc),
	}
	if err := s.hydrate(ctx, reg); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// hydrate replays every persisted instance row into the in-memory store in
// OID order (parent-before-child, matching the leading-slash depth
// convention oid.Less guarantees), so the parent-presence check in
// InMemory.Add succeeds for every row exactly as it would have the first
// time the row was written.
func (s *Store) hydrate(ctx context.Context, reg *schema.Registry) error {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, class_oid, value_kind, value_text FROM instances ORDER BY oid`)
	if err != nil {
		return wrapDBError("storage/sqlite: query instances", err)
	}
	defer rows.Close()

	type row struct{ o, class, kind, text string }
	var loaded []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.o, &r.class, &r.kind, &r.text); err != nil {
			return wrapDBError("storage/sqlite: scan instance row", err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return wrapDBError("storage/sqlite: iterate instance rows", err)
	}

	for _, r := range loaded {
		obj, ok := reg.Find(oid.ClassOf(oid.OID(r.o)))
		if !ok {
			return fmt.Errorf("storage/sqlite: hydrate %s: %w: class %s not registered", r.o, schema.ErrNotFound, oid.ClassOf(oid.OID(r.o)))
		}
		kind, ok := value.ParseKind(r.kind)
		if !ok {
			return fmt.Errorf("storage/sqlite: hydrate %s: %w: unrecognized value kind %q", r.o, schema.ErrInvalid, r.kind)
		}
		v, err := value.Parse(kind, r.text)
		if err != nil {
			return fmt.Errorf("storage/sqlite: hydrate %s: %w", r.o, err)
		}
		if _, err := s.InMemory.Add(ctx, oid.OID(r.o), obj, v, false, ""); err != nil {
			return fmt.Errorf("storage/sqlite: hydrate %s: %w", r.o, err)
		}
	}
	return nil
}

func (s *Store) persist(ctx context.Context, local bool, unit oid.OID, write writeFunc) error {
	if local {
		s.mu.Lock()
		s.pending[unit] = append(s.pending[unit], write)
		s.mu.Unlock()
		return nil
	}
	return write(ctx, s.db)
}

// Add creates the instance in the in-memory store first (so REGISTER-time
// validation, parent-presence, and family-linking all run exactly as they
// do for the in-memory-only backend) and persists it write-through.
func (s *Store) Add(ctx context.Context, o oid.OID, obj *schema.Object, v value.Value, local bool, unit oid.OID) (instance.Handle, error) {
	h, err := s.InMemory.Add(ctx, o, obj, v, local, unit)
	if err != nil {
		return h, err
	}
	write := func(ctx context.Context, exec execer) error {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO instances (handle, oid, class_oid, value_kind, value_text) VALUES (?, ?, ?, ?, ?)`,
			uint64(h), string(o), string(obj.OID), v.Kind.String(), value.Format(v))
		return wrapDBError("insert instance", err)
	}
	return h, s.persist(ctx, local, unit, write)
}

func (s *Store) Set(ctx context.Context, h instance.Handle, v value.Value, local bool, unit oid.OID) error {
	if err := s.InMemory.Set(ctx, h, v, local, unit); err != nil {
		return err
	}
	write := func(ctx context.Context, exec execer) error {
		_, err := exec.ExecContext(ctx,
			`UPDATE instances SET value_kind = ?, value_text = ? WHERE handle = ?`,
			v.Kind.String(), value.Format(v), uint64(h))
		return wrapDBError("update instance", err)
	}
	return s.persist(ctx, local, unit, write)
}

// Del always applies immediately (the deletion planner never buffers a
// delete under a unit), so it writes through without going via pending.
func (s *Store) Del(ctx context.Context, h instance.Handle, local bool) error {
	if err := s.InMemory.Del(ctx, h, local); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE handle = ?`, uint64(h))
	return wrapDBError("delete instance", err)
}

// Commit flushes the in-memory buffered writes for unit, then replays the
// matching persisted writes inside a single SQL transaction — an empty
// pending set is a no-op, same as InMemory.Commit.
func (s *Store) Commit(ctx context.Context, unit oid.OID) error {
	if err := s.InMemory.Commit(ctx, unit); err != nil {
		return err
	}

	s.mu.Lock()
	writes := s.pending[unit]
	delete(s.pending, unit)
	s.mu.Unlock()
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin commit transaction", err)
	}
	for _, w := range writes {
		if err := w(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapDBError("commit transaction", err)
	}
	return nil
}

// SyncSchema persists reg's current object and dependency set, replacing
// whatever was there before. It is not part of instance.Store: the schema
// registry is rebuilt from REGISTER calls at every startup, but a durable
// backend still benefits from a readable, queryable copy for inspection
// and for offline backup tooling that wants the schema without re-running
// every REGISTER.
func (s *Store) SyncSchema(ctx context.Context, reg *schema.Registry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin schema sync transaction", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies`); err != nil {
		_ = tx.Rollback()
		return wrapDBError("clear dependencies", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
		_ = tx.Rollback()
		return wrapDBError("clear objects", err)
	}

	for _, obj := range reg.All() {
		if obj.OID == "" {
			continue // the always-present, never-emitted root
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objects (oid, access, value_type, volatile, unit, no_parent_dep, ordinal) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(obj.OID), obj.Access.String(), obj.ValueType.String(), boolToInt(obj.Volatile), boolToInt(obj.Unit), boolToInt(obj.NoParentDep), obj.Ordinal,
		); err != nil {
			_ = tx.Rollback()
			return wrapDBError("insert object", err)
		}
		for _, dep := range obj.Dependencies {
			scope := "instance"
			if dep.Scope == schema.ScopeObjectWide {
				scope = "object"
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO dependencies (source_oid, target_oid, scope) VALUES (?, ?, ?)`,
				string(obj.OID), string(dep.Target.OID), scope,
			); err != nil {
				_ = tx.Rollback()
				return wrapDBError("insert dependency", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("commit schema sync", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
