package level

// Reference is the correctness-first container: a sorted []Level probed by
// comparator-driven binary search, grown and shrunk by shifting. It has no
// capacity bound.
//
// The search loop is written by hand rather than via sort.Search so the
// found-or-insert-point split falls out directly as a single pass, in the
// same hand-rolled style as a manual tree-walk search, generalized from a
// node walk to a slice walk.
type Reference struct {
	side   Side
	levels []Level
}

// NewReference constructs an empty Reference container for side s.
func NewReference(s Side) *Reference {
	return &Reference{side: s, levels: make([]Level, 0, 8)}
}

func (r *Reference) Side() Side { return r.side }
func (r *Reference) Len() int   { return len(r.levels) }

// search returns (index, true) if price is present at index, or
// (insertIndex, false) if absent — insertIndex is where price belongs to
// preserve ordering.
func (r *Reference) search(price float64) (int, bool) {
	lo, hi := 0, len(r.levels)
	for lo < hi {
		mid := (lo + hi) / 2
		p := r.levels[mid].Price
		switch {
		case p == price:
			return mid, true
		case less(r.side, price, p):
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

func (r *Reference) UpdateLevel(price float64, qty uint64) {
	i, found := r.search(price)
	if found {
		r.levels[i].Qty = qty
		return
	}
	r.levels = append(r.levels, Level{})
	copy(r.levels[i+1:], r.levels[i:])
	r.levels[i] = Level{Price: price, Qty: qty}
}

func (r *Reference) RemoveLevel(price float64) {
	i, found := r.search(price)
	if !found {
		return
	}
	copy(r.levels[i:], r.levels[i+1:])
	r.levels = r.levels[:len(r.levels)-1]
}

func (r *Reference) SnapshotLevels() []Level {
	out := make([]Level, len(r.levels))
	copy(out, r.levels)
	return out
}
