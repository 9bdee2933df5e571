// Package stream implements the live driver that consumes framed records
// off a channel the host owns. The core never creates or
// closes that channel; it only drains it.
package stream

import "lobkeeper/codec"

// MessageType tags a Frame's payload.
type MessageType uint8

const (
	// MessageSnapshot carries exactly one snapshot record at offset 0.
	MessageSnapshot MessageType = iota
	// MessageIncremental carries exactly one incremental record at offset 0.
	MessageIncremental
	// MessageEndOfSnapshot is the control frame that flips the phase.
	// Payload is ignored when this tag is set.
	MessageEndOfSnapshot
)

// Frame is one unit of delivery on the host-owned channel. Payload holds
// the raw record bytes for MessageSnapshot/MessageIncremental; it is nil
// or unused for MessageEndOfSnapshot, which may also arrive as a Data
// frame carrying that tag rather than a distinct control type.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// decodeSnapshotFrame and decodeIncrementalFrame decode a Frame's payload at offset
// 0 — frames carry exactly one record each, unlike the replay driver's
// dense byte regions.
func decodeSnapshotFrame(payload []byte) (codec.SnapshotRecord, error) {
	return codec.DecodeSnapshot(payload, 0)
}

func decodeIncrementalFrame(payload []byte) (codec.IncrementalRecord, error) {
	rec, _, err := codec.DecodeIncremental(payload, 0)
	return rec, err
}
