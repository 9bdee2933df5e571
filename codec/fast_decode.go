package codec

// DecodeIncrementalFast is the Fast driver's variant of DecodeIncremental:
// it still returns ErrTruncated for a short buffer (truncation is fatal
// on both paths), but an invalid side byte is downgraded to
// debugAssertValidSide instead of ErrInvalidSide — a panic only in a
// lobdebug build, a silent skip of that one update otherwise, on the
// strength of the producer contract.
func DecodeIncrementalFast(buf []byte, offset int) (rec IncrementalRecord, next int, err error) {
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

	rec.Updates = make([]IncrementalUpdate, 0, numUpdates)
	for i := uint64(0); i < numUpdates; i++ {
		sideByte := buf[pos]
		debugAssertValidSide(sideByte)
		if ValidSide(sideByte) {
			rec.Updates = append(rec.Updates, IncrementalUpdate{
				Side:  Side(sideByte),
				Price: readF64(buf, pos+1),
				Qty:   readU64(buf, pos+9),
			})
		}
		pos += IncrementalUpdateSize
	}

	return rec, pos, nil
}
