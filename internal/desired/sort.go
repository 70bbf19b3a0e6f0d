package desired

import (
	"log/slog"
	"sort"
)

// Sort returns a new slice holding list's descriptors in ascending object
// ordinal order: every instance ends up before every instance whose object
// is a dependency target of this one, since ordinals strictly increase
// along dependency edges. The sort is stable so descriptors that share an
// ordinal keep their desired-state-list order.
//
// A post-pass logs, but never fails on, an ordinal that decreased relative
// to its predecessor — which would only happen if the registry's
// monotonicity invariant had itself been violated upstream.
func Sort(logger *slog.Logger, list []*Descriptor) []*Descriptor {
	sorted := make([]*Descriptor, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Object.Ordinal < sorted[j].Object.Ordinal
	})

	if logger == nil {
		logger = slog.Default()
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Object.Ordinal < sorted[i-1].Object.Ordinal {
			logger.Warn("ordinal monotonicity anomaly in sorted desired-state list",
				"prev_oid", sorted[i-1].OID, "prev_ordinal", sorted[i-1].Object.Ordinal,
				"oid", sorted[i].OID, "ordinal", sorted[i].Object.Ordinal)
		}
	}
	return sorted
}
