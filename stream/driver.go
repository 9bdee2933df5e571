package stream

import (
	"fmt"

	"github.com/rs/zerolog"

	"lobkeeper/book"
	"lobkeeper/codec"
	"lobkeeper/level"
)

// SideFactory builds a fresh, empty level.Container for side s. Mirrors
// replay.SideFactory so a caller can wire up either driver with the same
// level.NewReference / level.NewFast constructors.
type SideFactory func(s level.Side) level.Container

// ThreadPinner pins the calling thread to a host-chosen core before the
// driver enters its receive loop. The core never decides which core; it
// only invokes whatever hook the host supplies.
type ThreadPinner func() error

// phase is the stream driver's two-state machine.
type phase int

const (
	phaseSnapshot phase = iota
	phaseIncremental
)

// defaultLateJoinerPoolSize is the number of *book.Book slots
// preallocated for the late-joiner branch of applyIncremental (an
// incremental for a security id with no snapshot yet). Mirrors
// replay.defaultLateJoinerPoolSize; Run falls back to a plain
// allocation once the pool is exhausted.
const defaultLateJoinerPoolSize = 16

// Driver applies Frames from a host-owned channel to a book registry,
// tracking the snapshot/incremental phase split and the maximum
// snapshot sequence number the way the replay driver's two passes do.
type Driver struct {
	reg            book.Registry
	newSide        SideFactory
	pin            ThreadPinner
	log            zerolog.Logger
	pool           *book.Pool
	phase          phase
	maxSnapshotSeq uint64
	sawEndOfSnap   bool
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithLogger attaches a diagnostics logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithThreadPinner supplies the host's "pin current thread to core N"
// hook. If omitted, Run skips pinning entirely.
func WithThreadPinner(pin ThreadPinner) Option {
	return func(d *Driver) { d.pin = pin }
}

// New constructs a Driver over reg, building fresh side containers via
// newSide when a security is first observed.
func New(reg book.Registry, newSide SideFactory, opts ...Option) *Driver {
	d := &Driver{
		reg:     reg,
		newSide: newSide,
		log:     zerolog.Nop(),
		phase:   phaseSnapshot,
		pool:    book.NewPool(defaultLateJoinerPoolSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxSnapshotSeq returns the maximum sequence number across the snapshot
// frames applied so far. Snapshot frames are only applied before the
// first EndOfSnapshot frame, so from that frame on the value is fixed.
func (d *Driver) MaxSnapshotSeq() uint64 { return d.maxSnapshotSeq }

// Run pins the calling thread (if a pinner was supplied) then drains
// frames until the channel closes, applying each according to the
// current phase. It returns when frames is closed and drained —
// channel closure is clean termination, not an error.
func (d *Driver) Run(frames <-chan Frame) error {
	if d.pin != nil {
		if err := d.pin(); err != nil {
			return fmt.Errorf("stream: pin thread: %w", err)
		}
	}

	for f := range frames {
		if err := d.handle(f); err != nil {
			return err
		}
	}
	d.log.Debug().Uint64("max_snapshot_seq", d.maxSnapshotSeq).Msg("stream: channel closed, driver terminating")
	return nil
}

func (d *Driver) handle(f Frame) error {
	switch f.Type {
	case MessageEndOfSnapshot:
		if !d.sawEndOfSnap {
			d.phase = phaseIncremental
			d.sawEndOfSnap = true
		}
		return nil

	case MessageSnapshot:
		if d.phase != phaseSnapshot {
			return nil // stray snapshot during incremental phase: protocol violation, dropped
		}
		rec, err := decodeSnapshotFrame(f.Payload)
		if err != nil {
			return fmt.Errorf("stream: decode snapshot frame: %w", err)
		}
		d.applySnapshot(rec)
		return nil

	case MessageIncremental:
		if d.phase != phaseIncremental {
			return nil // incremental during snapshot phase: protocol violation, dropped
		}
		rec, err := decodeIncrementalFrame(f.Payload)
		if err != nil {
			return fmt.Errorf("stream: decode incremental frame: %w", err)
		}
		d.applyIncremental(rec)
		return nil

	default:
		return fmt.Errorf("stream: unknown message type %d", f.Type)
	}
}

func (d *Driver) applySnapshot(rec codec.SnapshotRecord) {
	bids := d.newSide(level.Bid)
	asks := d.newSide(level.Ask)
	loadCanonical(bids, rec.Bids, true)
	loadCanonical(asks, rec.Asks, false)

	b := book.New(rec.SecurityID, bids, asks)
	b.SetLastUpdateSeq(rec.SeqNo)
	d.reg.Put(rec.SecurityID, b)

	if rec.SeqNo > d.maxSnapshotSeq {
		d.maxSnapshotSeq = rec.SeqNo
	}
}

func (d *Driver) applyIncremental(rec codec.IncrementalRecord) {
	if rec.SeqNo <= d.maxSnapshotSeq {
		return
	}

	wasNew := false
	b := d.reg.GetOrCreate(rec.SecurityID, func() *book.Book {
		wasNew = true
		return d.newLateJoinerBook(rec.SecurityID)
	})
	if wasNew {
		d.log.Debug().Uint64("security_id", rec.SecurityID).Uint64("seq_no", rec.SeqNo).Msg("stream: late joiner")
	}

	for _, u := range rec.Updates {
		side := level.Bid
		if u.Side == codec.SideAsk {
			side = level.Ask
		}
		b.Apply(side, u.Price, u.Qty)
	}
	b.SetLastUpdateSeq(rec.SeqNo)
}

// newLateJoinerBook draws a *book.Book from d.pool, falling back to a
// plain allocation if the pool is exhausted, then wires in fresh side
// containers for securityID — book.Pool.Get hands back a zeroed Book
// whose Bids/Asks are nil, so they must be assigned before use.
func (d *Driver) newLateJoinerBook(securityID uint64) *book.Book {
	b := d.pool.Get()
	if b == nil {
		return book.New(securityID, d.newSide(level.Bid), d.newSide(level.Ask))
	}
	b.SecurityID = securityID
	b.Bids = d.newSide(level.Bid)
	b.Asks = d.newSide(level.Ask)
	return b
}
