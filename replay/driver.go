// Package replay implements the two-pass batch driver over memory-mapped
// snapshot and incremental files.
package replay

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/rs/zerolog"

	"lobkeeper/book"
	"lobkeeper/codec"
	"lobkeeper/level"
)

// SideFactory builds a fresh, empty level.Container for side s. Callers
// pass a function wrapping level.NewReference for the Reference driver or
// level.NewFast for the Fast driver — the replay pass logic itself is
// identical either way,
// no runtime polymorphism is required on the hot path.
type SideFactory func(s level.Side) level.Container

// defaultLateJoinerPoolSize is the number of *book.Book slots
// preallocated for the late-joiner branch of the incremental pass (an
// incremental for a security id with no snapshot yet). Late joiners are
// rare but not bounded by the spec, so the pool is a latency
// optimization only: Run falls back to a plain allocation once it's
// exhausted.
const defaultLateJoinerPoolSize = 16

// Driver holds the memory-mapped snapshot and incremental byte regions
// for one replay call. File handles and maps are scoped to the call and
// released on every exit path via Close.
type Driver struct {
	snapshotFile      *os.File
	incrementalFile   *os.File
	snapshotMap       mmap.MMap
	incrementalMap    mmap.MMap
	snapshotMapped    bool // true iff snapshotMap is a real mmap needing Unmap
	incrementalMapped bool // true iff incrementalMap is a real mmap needing Unmap
	fastDecode        bool
	pool              *book.Pool
	log               zerolog.Logger
}

// Option configures a Driver at Open time.
type Option func(*Driver)

// WithLogger attaches a diagnostics logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithFastDecode selects codec.DecodeIncrementalFast (debug-assert side
// validation) over the strict codec.DecodeIncremental. Pairs with a Fast
// SideFactory but is independently selectable, since the spec only
// mandates the debug-assertion downgrade "on the hot path" — it does not
// couple it to a specific container variant.
func WithFastDecode() Option {
	return func(d *Driver) { d.fastDecode = true }
}

// Open memory-maps snapshotPath and incrementalPath read-only. The
// caller must call Close when done; Open itself releases any handle or
// map it already acquired if a later step fails.
func Open(snapshotPath, incrementalPath string, opts ...Option) (_ *Driver, err error) {
	d := &Driver{log: zerolog.Nop(), pool: book.NewPool(defaultLateJoinerPoolSize)}
	for _, opt := range opts {
		opt(d)
	}

	d.snapshotFile, err = os.Open(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file %q: %w", snapshotPath, err)
	}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.incrementalFile, err = os.Open(incrementalPath)
	if err != nil {
		return nil, fmt.Errorf("open incremental file %q: %w", incrementalPath, err)
	}

	d.snapshotMap, d.snapshotMapped, err = mapFile(d.snapshotFile)
	if err != nil {
		return nil, fmt.Errorf("mmap snapshot file %q: %w", snapshotPath, err)
	}

	d.incrementalMap, d.incrementalMapped, err = mapFile(d.incrementalFile)
	if err != nil {
		return nil, fmt.Errorf("mmap incremental file %q: %w", incrementalPath, err)
	}

	return d, nil
}

// mapFile memory-maps f read-only, unless f is empty: mmap() rejects a
// zero-length mapping outright, and an empty snapshot/incremental file is
// a legitimate input (e.g. the "snapshot only" scenario has no
// incremental file content), so an empty file maps to an empty, unmapped
// byte slice instead of attempting the syscall.
func mapFile(f *os.File) (m mmap.MMap, mapped bool, err error) {
	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.Size() == 0 {
		return mmap.MMap{}, false, nil
	}
	m, err = mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Close unmaps and closes both files. Safe to call multiple times and on
// a partially-initialized Driver (Open calls it on its own failure path).
func (d *Driver) Close() error {
	var errs []error
	if d.snapshotMapped {
		errs = append(errs, d.snapshotMap.Unmap())
		d.snapshotMapped = false
	}
	d.snapshotMap = nil
	if d.incrementalMapped {
		errs = append(errs, d.incrementalMap.Unmap())
		d.incrementalMapped = false
	}
	d.incrementalMap = nil
	if d.snapshotFile != nil {
		errs = append(errs, d.snapshotFile.Close())
		d.snapshotFile = nil
	}
	if d.incrementalFile != nil {
		errs = append(errs, d.incrementalFile.Close())
		d.incrementalFile = nil
	}
	return errors.Join(errs...)
}

// Run executes Pass 1 (snapshot ingestion) then Pass 2 (incremental
// application) into reg, building fresh side containers via newSide. It
// returns the maximum sequence number observed across all snapshot
// records.
func (d *Driver) Run(reg book.Registry, newSide SideFactory) (maxSnapshotSeq uint64, err error) {
	maxSnapshotSeq, err = d.runSnapshotPass(reg, newSide)
	if err != nil {
		return maxSnapshotSeq, err
	}
	if err := d.runIncrementalPass(reg, newSide, maxSnapshotSeq); err != nil {
		return maxSnapshotSeq, err
	}
	return maxSnapshotSeq, nil
}

func (d *Driver) runSnapshotPass(reg book.Registry, newSide SideFactory) (uint64, error) {
	var maxSeq uint64
	offset := 0
	for offset+codec.SnapshotSize <= len(d.snapshotMap) {
		rec, err := codec.DecodeSnapshot(d.snapshotMap, offset)
		if err != nil {
			return maxSeq, fmt.Errorf("snapshot pass at offset %d: %w", offset, err)
		}

		bids := newSide(level.Bid)
		asks := newSide(level.Ask)
		loadCanonical(bids, rec.Bids, true)
		loadCanonical(asks, rec.Asks, false)

		b := book.New(rec.SecurityID, bids, asks)
		b.SetLastUpdateSeq(rec.SeqNo)
		reg.Put(rec.SecurityID, b)

		if rec.SeqNo > maxSeq {
			maxSeq = rec.SeqNo
		}
		offset += codec.SnapshotSize
	}
	d.log.Debug().Uint64("max_snapshot_seq", maxSeq).Int("securities", reg.Len()).Msg("replay: snapshot pass complete")
	return maxSeq, nil
}

func (d *Driver) runIncrementalPass(reg book.Registry, newSide SideFactory, maxSnapshotSeq uint64) error {
	decode := codec.DecodeIncremental
	if d.fastDecode {
		decode = codec.DecodeIncrementalFast
	}

	offset := 0
	for offset+codec.IncrementalHeaderSize <= len(d.incrementalMap) {
		rec, next, err := decode(d.incrementalMap, offset)
		if err != nil {
			return fmt.Errorf("incremental pass at offset %d: %w", offset, err)
		}

		if rec.SeqNo <= maxSnapshotSeq {
			offset = next
			continue
		}

		wasNew := false
		b := reg.GetOrCreate(rec.SecurityID, func() *book.Book {
			wasNew = true
			return d.newLateJoinerBook(rec.SecurityID, newSide)
		})
		if wasNew {
			d.log.Debug().Uint64("security_id", rec.SecurityID).Uint64("seq_no", rec.SeqNo).Msg("replay: late joiner")
		}

		applyUpdates(b, rec.Updates)
		b.SetLastUpdateSeq(rec.SeqNo)

		offset = next
	}
	return nil
}

// newLateJoinerBook draws a *book.Book from d.pool, falling back to a
// plain allocation if the pool is exhausted, then wires in fresh side
// containers for securityID — book.Pool.Get hands back a zeroed Book
// whose Bids/Asks are nil, so they must be assigned before use.
func (d *Driver) newLateJoinerBook(securityID uint64, newSide SideFactory) *book.Book {
	b := d.pool.Get()
	if b == nil {
		return book.New(securityID, newSide(level.Bid), newSide(level.Ask))
	}
	b.SecurityID = securityID
	b.Bids = newSide(level.Bid)
	b.Asks = newSide(level.Ask)
	return b
}

func applyUpdates(b *book.Book, updates []codec.IncrementalUpdate) {
	for _, u := range updates {
		side := level.Bid
		if u.Side == codec.SideAsk {
			side = level.Ask
		}
		b.Apply(side, u.Price, u.Qty)
	}
}

// loadCanonical sorts a snapshot record's raw (wire-order) levels into
// this side's canonical order before loading them — the feed may present
// the 5 slots in any order, but the container invariant requires sorted
// input. This sort runs once per security at load time, not per update,
// so sort.Slice is the appropriate tool; level.Fast's own insert-path
// scan stays hand-rolled because that one is the hot path.
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
