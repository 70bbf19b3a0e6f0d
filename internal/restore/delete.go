// Package restore implements the deletion planner and the restore loop:
// convergent reconciliation of the live instance store to a desired-state
// list.
package restore

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/okt-galaktionov/confd/internal/desired"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/metrics"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/schema"
)

// PlanAndDelete deletes live read-create instances within subtrees that
// have no matching desired-state entry, children first, in
// descending-ordinal order. It reports hasDeps=true if any deleted object
// class has dependants, signalling to the restore loop that a later pass
// may be needed.
func PlanAndDelete(ctx context.Context, store instance.Store, desiredList []*desired.Descriptor, subtrees []oid.OID, rec *metrics.Recorder, logger *slog.Logger) (hasDeps bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	wanted := make(map[oid.OID]bool, len(desiredList))
	for _, d := range desiredList {
		wanted[d.OID] = true
	}

	var candidates []*instance.Instance
	for _, inst := range store.All() {
		if inst.Object.Access != schema.AccessReadCreate {
			continue
		}
		if !oid.ContainedIn(subtrees, inst.OID) {
			continue
		}
		candidates = append(candidates, inst)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Object.Ordinal > candidates[j].Object.Ordinal
	})

	deleted := make(map[instance.Handle]bool)
	for _, cand := range candidates {
		if deleted[cand.Handle] || wanted[cand.OID] || cand.Object.Volatile {
			continue
		}
		if delErr := deleteSubtree(ctx, store, cand, deleted, rec, &hasDeps, logger); delErr != nil {
			return hasDeps, delErr
		}
	}
	return hasDeps, nil
}

// deleteSubtree removes inst and all of its live, non-volatile,
// read-create children, son-first (depth-first post-order), so a child is
// always gone before its parent.
func deleteSubtree(ctx context.Context, store instance.Store, inst *instance.Instance, deleted map[instance.Handle]bool, rec *metrics.Recorder, hasDeps *bool, logger *slog.Logger) error {
	for son := inst.FirstSon; son != nil; son = son.NextBrother {
		if deleted[son.Handle] || son.Object.Access != schema.AccessReadCreate || son.Object.Volatile {
			continue
		}
		if err := deleteSubtree(ctx, store, son, deleted, rec, hasDeps, logger); err != nil {
			return err
		}
	}

	if inst.Object.HasDependants() {
		*hasDeps = true
	}

	err := store.Del(ctx, inst.Handle, false)
	deleted[inst.Handle] = true
	rec.IncDel(ctx)
	if err != nil {
		// A not-found result here signals the instance was already
		// collapsed by a previous delete in this pass; it is downgraded
		// to a warning but never silently hidden from the caller.
		if errors.Is(err, instance.ErrNotFound) {
			logger.Warn("delete: instance already gone", "oid", inst.OID)
		}
		return err
	}
	return nil
}
