// Package book aggregates the two level.Container sides for one security
// into a Book, and maintains the SecurityId -> Book registry the replay
// and stream drivers populate.
package book

import "lobkeeper/level"

// Book is the reconstructed order book for one security: a bid side, an
// ask side, and the sequence number of the last update applied. Created
// once per first observation of a security id; mutated only by the
// driver that owns it.
type Book struct {
	SecurityID uint64
	Bids       level.Container
	Asks       level.Container

	hasSeq  bool
	lastSeq uint64
}

// New constructs a Book over the given side containers. Callers pick the
// container variant (level.Reference or level.Fast) up front; Book itself
// is agnostic to which.
func New(securityID uint64, bids, asks level.Container) *Book {
	return &Book{SecurityID: securityID, Bids: bids, Asks: asks}
}

// LastUpdateSeq reports the last applied sequence number, if any.
func (b *Book) LastUpdateSeq() (seq uint64, ok bool) {
	return b.lastSeq, b.hasSeq
}

// SetLastUpdateSeq records seq as the most recently applied sequence
// number for this book.
func (b *Book) SetLastUpdateSeq(seq uint64) {
	b.lastSeq = seq
	b.hasSeq = true
}

// Apply routes a single (side, price, qty) update to the correct side
// container: qty == 0 removes the level, else it's an upsert. Shared by
// the replay and stream drivers so the update semantics live in exactly
// one place.
func (b *Book) Apply(side level.Side, price float64, qty uint64) {
	c := b.Bids
	if side == level.Ask {
		c = b.Asks
	}
	if qty == 0 {
		c.RemoveLevel(price)
	} else {
		c.UpdateLevel(price, qty)
	}
}
