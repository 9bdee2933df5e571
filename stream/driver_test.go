package stream

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"lobkeeper/book"
	"lobkeeper/codec"
	"lobkeeper/level"
)

func putU64(buf []byte, offset int, v uint64)  { binary.LittleEndian.PutUint64(buf[offset:offset+8], v) }
func putF64(buf []byte, offset int, v float64) { putU64(buf, offset, math.Float64bits(v)) }

func buildSnapshotFrame(ts, seq, secID uint64, bids, asks [5][2]float64) Frame {
	buf := make([]byte, codec.SnapshotSize)
	putU64(buf, 0, ts)
	putU64(buf, 8, seq)
	putU64(buf, 16, secID)
	pos := 24
	for i := 0; i < 5; i++ {
		putF64(buf, pos, bids[i][0])
		putU64(buf, pos+8, uint64(bids[i][1]))
		putF64(buf, pos+16, asks[i][0])
		putU64(buf, pos+24, uint64(asks[i][1]))
		pos += 32
	}
	return Frame{Type: MessageSnapshot, Payload: buf}
}

func buildIncrementalFrame(ts, seq, secID uint64, updates []codec.IncrementalUpdate) Frame {
	buf := make([]byte, codec.IncrementalHeaderSize+len(updates)*codec.IncrementalUpdateSize)
	putU64(buf, 0, ts)
	putU64(buf, 8, seq)
	putU64(buf, 16, secID)
	putU64(buf, 24, uint64(len(updates)))
	pos := codec.IncrementalHeaderSize
	for _, u := range updates {
		buf[pos] = byte(u.Side)
		putF64(buf, pos+1, u.Price)
		putU64(buf, pos+9, u.Qty)
		pos += codec.IncrementalUpdateSize
	}
	return Frame{Type: MessageIncremental, Payload: buf}
}

func refFactory(s level.Side) level.Container { return level.NewReference(s) }

func runFrames(t *testing.T, reg book.Registry, d *Driver, frames []Frame) {
	t.Helper()
	ch := make(chan Frame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	if err := d.Run(ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStreamPhaseFilterDropsIncrementalDuringSnapshotPhase(t *testing.T) {
	reg := book.NewMapRegistry()
	d := New(reg, refFactory)

	frames := []Frame{
		buildSnapshotFrame(1, 10, 1, [5][2]float64{{100.00, 500}, {0, 0}, {0, 0}, {0, 0}, {0, 0}}, [5][2]float64{}),
		buildIncrementalFrame(2, 11, 1, []codec.IncrementalUpdate{{Side: codec.SideBid, Price: 100.00, Qty: 0}}),
		{Type: MessageEndOfSnapshot},
		buildIncrementalFrame(3, 11, 1, []codec.IncrementalUpdate{{Side: codec.SideBid, Price: 100.00, Qty: 0}}),
	}
	runFrames(t, reg, d, frames)

	b, ok := reg.Get(1)
	if !ok {
		t.Fatal("expected book 1")
	}
	bids := b.Bids.SnapshotLevels()
	if len(bids) != 0 {
		t.Errorf("expected 100.00 removed after phase flip, got %+v", bids)
	}
	if d.MaxSnapshotSeq() != 10 {
		t.Errorf("max_snapshot_seq = %d, want 10", d.MaxSnapshotSeq())
	}
}

func TestStreamStraySnapshotDuringIncrementalPhaseIsDropped(t *testing.T) {
	reg := book.NewMapRegistry()
	d := New(reg, refFactory)

	frames := []Frame{
		buildSnapshotFrame(1, 10, 1, [5][2]float64{{100.00, 500}, {0, 0}, {0, 0}, {0, 0}, {0, 0}}, [5][2]float64{}),
		{Type: MessageEndOfSnapshot},
		buildSnapshotFrame(2, 20, 1, [5][2]float64{{200.00, 1}, {0, 0}, {0, 0}, {0, 0}, {0, 0}}, [5][2]float64{}),
	}
	runFrames(t, reg, d, frames)

	b, _ := reg.Get(1)
	bids := b.Bids.SnapshotLevels()
	if len(bids) != 1 || bids[0].Price != 100.00 {
		t.Errorf("stray snapshot should have been dropped, got %+v", bids)
	}
}

func TestStreamEndOfSnapshotIsIdempotent(t *testing.T) {
	reg := book.NewMapRegistry()
	d := New(reg, refFactory)

	frames := []Frame{
		buildSnapshotFrame(1, 10, 1, [5][2]float64{}, [5][2]float64{}),
		{Type: MessageEndOfSnapshot},
		buildSnapshotFrame(2, 999, 1, [5][2]float64{{50, 1}, {0, 0}, {0, 0}, {0, 0}, {0, 0}}, [5][2]float64{}),
		{Type: MessageEndOfSnapshot},
	}
	runFrames(t, reg, d, frames)

	if d.MaxSnapshotSeq() != 10 {
		t.Errorf("max_snapshot_seq = %d, want 10 (second EndOfSnapshot must be a no-op)", d.MaxSnapshotSeq())
	}
}

func TestStreamLateJoiner(t *testing.T) {
	reg := book.NewMapRegistry()
	d := New(reg, refFactory)

	frames := []Frame{
		{Type: MessageEndOfSnapshot},
		buildIncrementalFrame(1, 2000, 7, []codec.IncrementalUpdate{{Side: codec.SideAsk, Price: 50.0, Qty: 10}}),
	}
	runFrames(t, reg, d, frames)

	b, ok := reg.Get(7)
	if !ok {
		t.Fatal("expected late-joiner book 7")
	}
	asks := b.Asks.SnapshotLevels()
	if len(asks) != 1 || asks[0] != (level.Level{Price: 50.0, Qty: 10}) {
		t.Errorf("asks = %+v, want [{50 10}]", asks)
	}
}

// TestStreamLateJoinerPoolExhaustionFallsBack drives more late joiners
// than defaultLateJoinerPoolSize through applyIncremental to exercise
// both branches of newLateJoinerBook: drawn from the pool, then a plain
// allocation once it's exhausted.
func TestStreamLateJoinerPoolExhaustionFallsBack(t *testing.T) {
	reg := book.NewMapRegistry()
	d := New(reg, refFactory)

	const numLateJoiners = defaultLateJoinerPoolSize + 5
	frames := []Frame{{Type: MessageEndOfSnapshot}}
	for i := uint64(0); i < numLateJoiners; i++ {
		frames = append(frames, buildIncrementalFrame(1, 1000+i, 100+i,
			[]codec.IncrementalUpdate{{Side: codec.SideAsk, Price: 50.0 + float64(i), Qty: 10}}))
	}
	runFrames(t, reg, d, frames)

	if reg.Len() != numLateJoiners {
		t.Fatalf("reg.Len() = %d, want %d", reg.Len(), numLateJoiners)
	}
	for i := uint64(0); i < numLateJoiners; i++ {
		b, ok := reg.Get(100 + i)
		if !ok {
			t.Fatalf("expected late-joiner book %d", 100+i)
		}
		asks := b.Asks.SnapshotLevels()
		want := level.Level{Price: 50.0 + float64(i), Qty: 10}
		if len(asks) != 1 || asks[0] != want {
			t.Errorf("book %d asks = %+v, want [%+v]", 100+i, asks, want)
		}
	}
}

func TestStreamInvokesThreadPinnerBeforeReceiveLoop(t *testing.T) {
	reg := book.NewMapRegistry()
	pinned := false
	d := New(reg, refFactory, WithThreadPinner(func() error {
		pinned = true
		return nil
	}))

	ch := make(chan Frame)
	close(ch)
	if err := d.Run(ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pinned {
		t.Error("expected thread pinner to be invoked")
	}
}

func TestStreamThreadPinnerFailureAbortsRun(t *testing.T) {
	reg := book.NewMapRegistry()
	wantErr := errors.New("pin failed")
	d := New(reg, refFactory, WithThreadPinner(func() error { return wantErr }))

	ch := make(chan Frame)
	close(ch)
	err := d.Run(ch)
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped pin error, got %v", err)
	}
}
