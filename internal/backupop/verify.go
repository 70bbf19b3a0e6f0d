package backupop

import (
	"fmt"

	"github.com/okt-galaktionov/confd/internal/desired"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
	"github.com/okt-galaktionov/confd/internal/value"
)

// diff compares the live store against a desired-state list without
// mutating anything: every desired entry must exist live with an equal
// value, and no extra read-create, non-volatile live instance may exist in
// scope that isn't desired. It mirrors the read side of the deletion
// planner and the restore loop's value comparison but issues no
// ADD/SET/DEL.
func diff(store instance.Store, list []*desired.Descriptor, subtrees []oid.OID) ([]string, error) {
	wanted := make(map[oid.OID]bool, len(list))
	for _, d := range list {
		wanted[d.OID] = true
	}

	var mismatches []string

	for _, inst := range store.All() {
		if inst.Object.Access != schema.AccessReadCreate || inst.Object.Volatile {
			continue
		}
		if !oid.ContainedIn(subtrees, inst.OID) {
			continue
		}
		if !wanted[inst.OID] {
			mismatches = append(mismatches, fmt.Sprintf("unexpected live instance %s", inst.OID))
		}
	}

	for _, d := range list {
		h, ok := store.Find(d.OID)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("missing instance %s", d.OID))
			continue
		}
		if d.Object.ValueType == value.KindNone || d.Object.ValueType == value.KindUnspecified {
			continue
		}
		cur, ok := store.Get(h)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("missing instance %s", d.OID))
			continue
		}
		if !value.Equal(cur.Value, d.Value) {
			mismatches = append(mismatches, fmt.Sprintf("value mismatch on %s: live=%s desired=%s",
				d.OID, value.Format(cur.Value), value.Format(d.Value)))
		}
	}

	return mismatches, nil
}
