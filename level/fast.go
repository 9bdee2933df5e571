package level

import "math/bits"

// Fast is the latency-optimized container: fixed-capacity contiguous
// arrays searched by a chunk-of-4 scan that mirrors an AVX compare/
// movemask pattern, expressed in portable Go. Go has no cross-platform
// 256-bit float compare intrinsic without per-arch assembly, so this
// scan is always the scalar fallback — correctness is identical to a
// true vectorized version, only the constant factor differs.
//
// Inserting past FastCapacity silently drops the update; this is a
// deliberate latency-over-completeness choice, not a bug.
type Fast struct {
	side   Side
	count  int
	prices [FastCapacity]float64
	qtys   [FastCapacity]uint64
}

// NewFast constructs an empty Fast container for side s.
func NewFast(s Side) *Fast {
	return &Fast{side: s}
}

func (f *Fast) Side() Side { return f.side }
func (f *Fast) Len() int   { return f.count }

func (f *Fast) sideOrdered(price, element float64) bool {
	if f.side == Bid {
		return price > element
	}
	return price < element
}

// findPosition returns (index, true) if price is present, or
// (insertIndex, false) naming the first element price should precede.
func (f *Fast) findPosition(price float64) (int, bool) {
	i := 0
	for ; i+4 <= f.count; i += 4 {
		var eqMask, ordMask uint8
		for j := 0; j < 4; j++ {
			if f.prices[i+j] == price {
				eqMask |= 1 << uint(j)
			}
		}
		if eqMask != 0 {
			return i + bits.TrailingZeros8(eqMask), true
		}
		for j := 0; j < 4; j++ {
			if f.sideOrdered(price, f.prices[i+j]) {
				ordMask |= 1 << uint(j)
			}
		}
		if ordMask != 0 {
			return i + bits.TrailingZeros8(ordMask), false
		}
	}
	// scalar tail, same semantics
	for ; i < f.count; i++ {
		if f.prices[i] == price {
			return i, true
		}
		if f.sideOrdered(price, f.prices[i]) {
			return i, false
		}
	}
	return f.count, false
}

func (f *Fast) UpdateLevel(price float64, qty uint64) {
	// fast path: best level (index 0) is the overwhelmingly common update
	if f.count > 0 && f.prices[0] == price {
		f.qtys[0] = qty
		return
	}

	pos, found := f.findPosition(price)
	if found {
		f.qtys[pos] = qty
		return
	}
	if f.count == FastCapacity {
		return // capacity exceeded: silently dropped
	}
	if pos < f.count {
		copy(f.prices[pos+1:f.count+1], f.prices[pos:f.count])
		copy(f.qtys[pos+1:f.count+1], f.qtys[pos:f.count])
	}
	f.prices[pos] = price
	f.qtys[pos] = qty
	f.count++
}

func (f *Fast) RemoveLevel(price float64) {
	if f.count > 0 && f.prices[0] == price {
		f.count--
		copy(f.prices[0:f.count], f.prices[1:f.count+1])
		copy(f.qtys[0:f.count], f.qtys[1:f.count+1])
		return
	}

	pos, found := f.findPosition(price)
	if !found {
		return
	}
	f.count--
	if pos < f.count {
		copy(f.prices[pos:f.count], f.prices[pos+1:f.count+1])
		copy(f.qtys[pos:f.count], f.qtys[pos+1:f.count+1])
	}
}

func (f *Fast) SnapshotLevels() []Level {
	out := make([]Level, f.count)
	for i := 0; i < f.count; i++ {
		out[i] = Level{Price: f.prices[i], Qty: f.qtys[i]}
	}
	return out
}
