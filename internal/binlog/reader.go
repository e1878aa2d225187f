package binlog

import (
	"encoding/binary"
	"io"
	"log"
)

// Replay reads every record from just past the header to the tail,
// calling apply for each one successfully decoded, and stops at: (a) a
// clean end, (b) an unrecognised record kind, (c) a Store/StoreWithTime
// with size ≤ 0 or size > maxDataSize, (d) a short read. On (b)-(d) it
// reports a truncated tail in Stats, and truncates the file to the
// last valid record boundary so the next Append starts clean.
func (l *Log) Replay(maxDataSize int32, apply func(Record)) (Stats, error) {
	if _, err := l.vf.Seek(headerSize, io.SeekStart); err != nil {
		return Stats{}, err
	}

	var stats Stats
	pos := int64(headerSize)

	for {
		kindBuf := make([]byte, 1)
		n, err := io.ReadFull(l.vf, kindBuf)
		if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			break // clean end
		}
		if err != nil {
			log.Printf("binlog: short read at offset %d: %v", pos, err)
			stats.Truncated = true
			stats.TruncatedAt = pos
			break
		}

		kind := Kind(kindBuf[0])
		rec, size, ok := l.decodeRecordAt(pos, kind, maxDataSize)
		if !ok {
			stats.Truncated = true
			stats.TruncatedAt = pos
			break
		}

		apply(rec)
		stats.RecordsApplied++
		pos += size
	}

	l.pos = pos
	if stats.Truncated {
		log.Printf("binlog: truncating at offset %d (%d records recovered)", stats.TruncatedAt, stats.RecordsApplied)
		if err := l.vf.Truncate(stats.TruncatedAt); err != nil {
			return stats, err
		}
	}
	if _, err := l.vf.Seek(l.pos, io.SeekStart); err != nil {
		return stats, err
	}
	return stats, nil
}

// decodeRecordAt reads the record body (kind byte already consumed at
// offset pos) and reports whether it decoded cleanly. size is the
// total on-wire length including the kind byte, used by the caller to
// advance pos.
func (l *Log) decodeRecordAt(pos int64, kind Kind, maxDataSize int32) (Record, int64, bool) {
	switch kind {
	case KindStore, KindStoreWithTime:
		withTime := kind == KindStoreWithTime
		body := make([]byte, l.keySize+storeFieldsSize)
		if !l.readFull(body) {
			return Record{}, 0, false
		}
		key := append([]byte(nil), body[:l.keySize]...)
		p, tag, size, checksum := decodeStoreFields(body[l.keySize:])
		if size <= 0 || size > maxDataSize {
			return Record{}, 0, false
		}
		r := Record{Kind: kind, Key: key, Place: p, Tag: tag, Size: size, Checksum: checksum}
		total := int64(1 + len(body))
		if withTime {
			tbuf := make([]byte, 16)
			if !l.readFull(tbuf) {
				return Record{}, 0, false
			}
			r.Time, r.System = decodeTimePoint(tbuf)
			total += 16
		}
		return r, total, true

	case KindMultiStore, KindMultiStoreWithTime:
		withTime := kind == KindMultiStoreWithTime
		total := int64(1)
		var recTime uint64
		var recSystem int64
		if withTime {
			tbuf := make([]byte, 16)
			if !l.readFull(tbuf) {
				return Record{}, 0, false
			}
			recTime, recSystem = decodeTimePoint(tbuf)
			total += 16
		}
		cbuf := make([]byte, 4)
		if !l.readFull(cbuf) {
			return Record{}, 0, false
		}
		count := binary.LittleEndian.Uint32(cbuf)
		total += 4

		parts := make([]Part, 0, count)
		partWidth := l.keySize + storeFieldsSize
		for i := uint32(0); i < count; i++ {
			body := make([]byte, partWidth)
			if !l.readFull(body) {
				return Record{}, 0, false
			}
			key := append([]byte(nil), body[:l.keySize]...)
			p, tag, size, checksum := decodeStoreFields(body[l.keySize:])
			if size <= 0 || size > maxDataSize {
				return Record{}, 0, false
			}
			parts = append(parts, Part{Key: key, Place: p, Tag: tag, Size: size, Checksum: checksum})
			total += int64(partWidth)
		}
		return Record{Kind: kind, Parts: parts, Time: recTime, System: recSystem}, total, true

	case KindMultiRemove, KindMultiAccess:
		isAccess := kind == KindMultiAccess
		total := int64(1)
		var recTime uint64
		var recSystem int64
		if isAccess {
			tbuf := make([]byte, 16)
			if !l.readFull(tbuf) {
				return Record{}, 0, false
			}
			recTime, recSystem = decodeTimePoint(tbuf)
			total += 16
		}
		cbuf := make([]byte, 4)
		if !l.readFull(cbuf) {
			return Record{}, 0, false
		}
		count := binary.LittleEndian.Uint32(cbuf)
		total += 4

		keys := make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			k := make([]byte, l.keySize)
			if !l.readFull(k) {
				return Record{}, 0, false
			}
			keys = append(keys, k)
			total += int64(l.keySize)
		}
		return Record{Kind: kind, Keys: keys, Time: recTime, System: recSystem}, total, true

	default:
		return Record{}, 0, false
	}
}

func (l *Log) readFull(buf []byte) bool {
	_, err := io.ReadFull(l.vf, buf)
	return err == nil
}
