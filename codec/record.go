// Package codec decodes the two fixed-layout binary records on the wire:
// the 184-byte Snapshot record and the variable-length Incremental
// record (32-byte header + N x 17-byte updates). Decoding is pure: no
// I/O, just byte-slice parsing at a caller-given offset, so it works
// identically over a memory-mapped file or a single framed message.
//
// encoding/binary.LittleEndian reads are unaligned-safe on a []byte
// regardless of the slice's start address, which matters here: a
// Snapshot record is not naturally 8-byte aligned at an arbitrary file
// offset, so every multi-byte field must go through an unaligned load
// primitive rather than a direct pointer cast.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// SnapshotSize is the fixed byte length of one Snapshot record.
	SnapshotSize = 8 + 8 + 8 + (8+8)*2*5

	// IncrementalHeaderSize is the fixed byte length of an Incremental
	// record's header, before its N update triples.
	IncrementalHeaderSize = 8 + 8 + 8 + 8

	// IncrementalUpdateSize is the byte length of one (side, price, qty)
	// update triple within an Incremental record.
	IncrementalUpdateSize = 1 + 8 + 8

	// snapshotLevelGroups is the fixed number of (bid, ask) level pairs
	// carried by every Snapshot record.
	snapshotLevelGroups = 5
)

// Side is the wire encoding of which side of the book an update targets.
type Side uint8

const (
	SideBid Side = 0
	SideAsk Side = 1
)

// SnapshotLevel is one non-sentinel (price, qty) pair decoded from a
// Snapshot record's bid or ask slot. A slot with price == 0 or qty == 0
// means "no level present" and is never turned into a SnapshotLevel.
type SnapshotLevel struct {
	Price float64
	Qty   uint64
}

// SnapshotRecord is a decoded 184-byte Snapshot record. Bids/Asks are in
// wire order (slot order), not yet canonicalized into the book's side
// ordering — the feed may present them in any slot order, so sorting
// into canonical order is the replay/stream driver's job at load time.
type SnapshotRecord struct {
	TimestampMs uint64
	SeqNo       uint64
	SecurityID  uint64
	Bids        []SnapshotLevel
	Asks        []SnapshotLevel
}

// IncrementalUpdate is one decoded (side, price, qty) triple.
type IncrementalUpdate struct {
	Side  Side
	Price float64
	Qty   uint64
}

// IncrementalRecord is a decoded Incremental record: header fields plus
// its update triples, in wire order.
type IncrementalRecord struct {
	TimestampMs uint64
	SeqNo       uint64
	SecurityID  uint64
	Updates     []IncrementalUpdate
}

func readU64(buf []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(buf[offset : offset+8])
}

func readF64(buf []byte, offset int) float64 {
	return math.Float64frombits(readU64(buf, offset))
}

func need(buf []byte, offset, size int) error {
	if offset < 0 || offset+size > len(buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, size, offset, len(buf))
	}
	return nil
}

// DecodeSnapshot decodes one Snapshot record at offset. It returns
// ErrTruncated if the buffer is too short to hold a full record.
func DecodeSnapshot(buf []byte, offset int) (SnapshotRecord, error) {
	if err := need(buf, offset, SnapshotSize); err != nil {
		return SnapshotRecord{}, err
	}

	rec := SnapshotRecord{
		TimestampMs: readU64(buf, offset),
		SeqNo:       readU64(buf, offset+8),
		SecurityID:  readU64(buf, offset+16),
	}

	pos := offset + 24
	for i := 0; i < snapshotLevelGroups; i++ {
		bidPrice := readF64(buf, pos)
		bidQty := readU64(buf, pos+8)
		askPrice := readF64(buf, pos+16)
		askQty := readU64(buf, pos+24)
		pos += 32

		if bidPrice != 0 && bidQty != 0 {
			rec.Bids = append(rec.Bids, SnapshotLevel{Price: bidPrice, Qty: bidQty})
		}
		if askPrice != 0 && askQty != 0 {
			rec.Asks = append(rec.Asks, SnapshotLevel{Price: askPrice, Qty: askQty})
		}
	}

	return rec, nil
}

// DecodeIncrementalHeader decodes only the fixed 32-byte header of an
// Incremental record: timestamp, seq_no, security_id, and num_updates.
// DecodeIncremental and DecodeIncrementalFast both peek the header this
// way before deciding how many update triples to bounds-check and parse.
func DecodeIncrementalHeader(buf []byte, offset int) (timestampMs, seqNo, securityID, numUpdates uint64, err error) {
	if err := need(buf, offset, IncrementalHeaderSize); err != nil {
		return 0, 0, 0, 0, err
	}
	return readU64(buf, offset), readU64(buf, offset+8), readU64(buf, offset+16), readU64(buf, offset+24), nil
}

// DecodeIncremental decodes one Incremental record at offset, including
// its header and all num_updates triples. It returns the offset one past
// the end of the decoded record (the next record's start), or an error
// (ErrTruncated for a short buffer, ErrInvalidSide for a side byte
// outside {0, 1}).
func DecodeIncremental(buf []byte, offset int) (rec IncrementalRecord, next int, err error) {
	timestampMs, seqNo, securityID, numUpdates, err := DecodeIncrementalHeader(buf, offset)
	if err != nil {
		return IncrementalRecord{}, 0, err
	}
	rec.TimestampMs, rec.SeqNo, rec.SecurityID = timestampMs, seqNo, securityID

	pos := offset + IncrementalHeaderSize
	updatesSize := int(numUpdates) * IncrementalUpdateSize
	if err := need(buf, pos, updatesSize); err != nil {
		return IncrementalRecord{}, 0, err
	}

	rec.Updates = make([]IncrementalUpdate, numUpdates)
	for i := range rec.Updates {
		sideByte := buf[pos]
		if sideByte != byte(SideBid) && sideByte != byte(SideAsk) {
			return IncrementalRecord{}, 0, fmt.Errorf("%w: %d", ErrInvalidSide, sideByte)
		}
		rec.Updates[i] = IncrementalUpdate{
			Side:  Side(sideByte),
			Price: readF64(buf, pos+1),
			Qty:   readU64(buf, pos+9),
		}
		pos += IncrementalUpdateSize
	}

	return rec, pos, nil
}
