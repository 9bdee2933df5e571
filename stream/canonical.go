package stream

import (
	"sort"

	"lobkeeper/codec"
	"lobkeeper/level"
)

// loadCanonical sorts a snapshot frame's raw levels into this side's
// canonical order before loading them, same rationale as the replay
// driver's loadCanonical: a one-time sort per security at snapshot time,
// not on the per-update hot path.
func loadCanonical(c level.Container, levels []codec.SnapshotLevel, isBid bool) {
	sorted := make([]codec.SnapshotLevel, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool {
		if isBid {
			return sorted[i].Price > sorted[j].Price
		}
		return sorted[i].Price < sorted[j].Price
	})
	for _, lv := range sorted {
		c.UpdateLevel(lv.Price, lv.Qty)
	}
}
