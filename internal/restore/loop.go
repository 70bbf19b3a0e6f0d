package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/okt-galaktionov/confd/internal/desired"
	"github.com/okt-galaktionov/confd/internal/instance"
	"github.com/okt-galaktionov/confd/internal/metrics"
	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/synctarget"
	"github.com/okt-galaktionov/confd/internal/value"
)

// DefaultMaxOuterIterations bounds the outer dependency-cascade loop when
// Options.MaxOuterIterations is not set.
const DefaultMaxOuterIterations = 10

// Options configures a restore Loop invocation.
type Options struct {
	// MaxOuterIterations bounds the outer dependency-cascade loop. Zero
	// means DefaultMaxOuterIterations.
	MaxOuterIterations int

	// AgentSubtrees lists OID prefixes managed out-of-band by remote test
	// agents; instances under them are treated as always-successful no-ops
	// rather than added or set.
	AgentSubtrees []oid.OID

	// Metrics records outer-iteration counts and ADD/SET/DEL/ENOENT-retry
	// volumes. Nil is a valid no-op recorder.
	Metrics *metrics.Recorder
}

func (o Options) maxIterations() int {
	if o.MaxOuterIterations > 0 {
		return o.MaxOuterIterations
	}
	return DefaultMaxOuterIterations
}

// Loop runs the restore convergence loop against list, which must already
// be topologically sorted (desired.Sort)
// and family-linked (desired.Build). It returns wrapped instance.ErrNotFound
// if convergence failed — either a prerequisite never appeared within one
// outer pass, or the outer-iteration bound was reached with some instance
// still not added.
func Loop(ctx context.Context, store instance.Store, sync synctarget.Syncer, list []*desired.Descriptor, subtrees []oid.OID, opts Options, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	max := opts.maxIterations()

	outer := 0
	for ; outer < max; outer++ {
		depsMightFire := false

		hasDeps, err := PlanAndDelete(ctx, store, list, subtrees, opts.Metrics, logger)
		if err != nil {
			opts.Metrics.RecordOuterIterations(ctx, int64(outer+1))
			return fmt.Errorf("restore: delete phase: %w", err)
		}
		if hasDeps {
			depsMightFire = true
		}

		needRetry, err := runInnerLoop(ctx, store, list, opts.AgentSubtrees, opts.Metrics, &depsMightFire, logger)
		if err != nil {
			opts.Metrics.RecordOuterIterations(ctx, int64(outer+1))
			return fmt.Errorf("restore: %w", err)
		}
		if needRetry {
			opts.Metrics.RecordOuterIterations(ctx, int64(outer+1))
			return fmt.Errorf("restore: %w: prerequisite never appeared", instance.ErrNotFound)
		}

		if !depsMightFire {
			opts.Metrics.RecordOuterIterations(ctx, int64(outer+1))
			return nil
		}
		if err := sync.Sync(ctx, "/:"); err != nil {
			opts.Metrics.RecordOuterIterations(ctx, int64(outer+1))
			return fmt.Errorf("restore: agent sync: %w", err)
		}
	}

	opts.Metrics.RecordOuterIterations(ctx, int64(outer))
	logger.Warn("restore: loop dependency suspected", "max_iterations", max)
	for _, d := range list {
		if !d.Added {
			return fmt.Errorf("restore: %w: %s never converged after %d outer iterations", instance.ErrNotFound, d.OID, max)
		}
	}
	return nil
}

// runInnerLoop repeatedly walks list in sorted order, restoring every
// descriptor that is not yet Added and not part of a unit (those are
// handled recursively by their unit root), until a pass makes no change or
// needs no further retry.
func runInnerLoop(ctx context.Context, store instance.Store, list []*desired.Descriptor, agentSubtrees []oid.OID, rec *metrics.Recorder, depsMightFire *bool, logger *slog.Logger) (needRetry bool, err error) {
	for {
		changeMade := false
		needRetry = false

		for _, d := range list {
			if d.Added || d.Object.UnitPart {
				continue
			}
			cm, nr, hasDeps, rerr := restoreEntry(ctx, store, d, agentSubtrees, rec, logger)
			if rerr != nil {
				return false, rerr
			}
			if hasDeps {
				*depsMightFire = true
			}
			if cm {
				changeMade = true
			}
			if nr {
				needRetry = true
			}
		}

		if !changeMade || !needRetry {
			return needRetry, nil
		}
	}
}

// restoreEntry dispatches a single descriptor: a unit root is a commit
// boundary, recursing through its sons/brothers with local=true before a
// single Commit; anything else is a plain add/set.
func restoreEntry(ctx context.Context, store instance.Store, d *desired.Descriptor, agentSubtrees []oid.OID, rec *metrics.Recorder, logger *slog.Logger) (changeMade, needRetry, hasDeps bool, err error) {
	if !d.Object.Unit {
		cm, nr, hd, aerr := addOrSet(ctx, store, d, false, "", agentSubtrees, rec)
		if aerr == nil && !nr {
			d.Added = true
		}
		return cm, nr, hd, aerr
	}

	cm, nr, hd, aerr := addOrSet(ctx, store, d, false, d.OID, agentSubtrees, rec)
	if aerr != nil || nr {
		return cm, nr, hd, aerr
	}

	if rerr := recurseUnit(ctx, store, d, d.OID, agentSubtrees, rec, &cm, &nr, &hd); rerr != nil {
		return cm, nr, hd, rerr
	}
	if nr {
		// Something under this unit still needs a later pass; leave the
		// root un-Added so the whole unit is retried and the buffered
		// writes stay pending until the commit below finally runs.
		return cm, nr, hd, nil
	}

	if cerr := store.Commit(ctx, d.OID); cerr != nil {
		return cm, nr, hd, fmt.Errorf("restore: commit %s: %w", d.OID, cerr)
	}
	d.Added = true
	return cm, nr, hd, nil
}

// recurseUnit descends a unit root's son/brother links, buffering every
// add/set locally under the unit's commit boundary.
func recurseUnit(ctx context.Context, store instance.Store, node *desired.Descriptor, unit oid.OID, agentSubtrees []oid.OID, rec *metrics.Recorder, changeMade, needRetry, hasDeps *bool) error {
	for child := node.FirstSon; child != nil; child = child.NextBrother {
		if !child.Added {
			cm, nr, hd, err := addOrSet(ctx, store, child, true, unit, agentSubtrees, rec)
			if err != nil {
				return err
			}
			if hd {
				*hasDeps = true
			}
			if nr {
				*needRetry = true
				continue
			}
			if cm {
				*changeMade = true
			}
			child.Added = true
		}
		if err := recurseUnit(ctx, store, child, unit, agentSubtrees, rec, changeMade, needRetry, hasDeps); err != nil {
			return err
		}
	}
	return nil
}

// addOrSet resolves the handle, compares or creates, and classifies the
// outcome. A not-found result never aborts the operation; it only requests
// a retry on a later pass.
func addOrSet(ctx context.Context, store instance.Store, d *desired.Descriptor, local bool, unit oid.OID, agentSubtrees []oid.OID, rec *metrics.Recorder) (changeMade, needRetry, hasDeps bool, err error) {
	if len(agentSubtrees) > 0 && oid.ContainedIn(agentSubtrees, d.OID) {
		return false, false, false, nil
	}

	if d.Handle == instance.Invalid {
		if h, ok := store.Find(d.OID); ok {
			d.Handle = h
		}
	}

	if d.Object.HasDependants() {
		hasDeps = true
	}

	if d.Handle != instance.Invalid {
		if d.Object.ValueType == value.KindNone || d.Object.ValueType == value.KindUnspecified {
			return false, false, hasDeps, nil
		}
		cur, ok := store.Get(d.Handle)
		if !ok {
			rec.IncENOENTRetry(ctx)
			return false, true, hasDeps, nil
		}
		if value.Equal(cur.Value, d.Value) {
			return false, false, hasDeps, nil
		}
		if serr := store.Set(ctx, d.Handle, d.Value, local, unit); serr != nil {
			if errors.Is(serr, instance.ErrNotFound) {
				rec.IncENOENTRetry(ctx)
				return false, true, hasDeps, nil
			}
			return false, false, hasDeps, serr
		}
		rec.IncSet(ctx)
		return true, false, hasDeps, nil
	}

	h, aerr := store.Add(ctx, d.OID, d.Object, d.Value, local, unit)
	if aerr != nil {
		if errors.Is(aerr, instance.ErrNotFound) {
			rec.IncENOENTRetry(ctx)
			return false, true, hasDeps, nil
		}
		return false, false, hasDeps, aerr
	}
	d.Handle = h
	rec.IncAdd(ctx)
	return true, false, hasDeps, nil
}
