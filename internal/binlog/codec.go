package binlog

import (
	"encoding/binary"
	"fmt"

	"cachedb/internal/place"
)

// headerSize is the fixed on-wire size of Header.
const headerSize = 4 + 1 + 8 + 1 + 1 // magic + version + systemTime + flags + keySize

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	buf[4] = headerVersion
	binary.LittleEndian.PutUint64(buf[5:13], uint64(h.SystemTime))
	buf[13] = h.Flags
	buf[14] = byte(h.KeySize)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("binlog: short header (%d bytes)", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != headerMagic {
		return Header{}, fmt.Errorf("binlog: bad magic")
	}
	if buf[4] != headerVersion {
		return Header{}, fmt.Errorf("binlog: unsupported version %d", buf[4])
	}
	return Header{
		SystemTime: int64(binary.LittleEndian.Uint64(buf[5:13])),
		Flags:      buf[13],
		KeySize:    int(buf[14]),
	}, nil
}

// storeFieldsSize is the fixed width of the non-key, non-time fields
// shared by Store and every Part: place + tag + size + checksum.
const storeFieldsSize = place.Size + 1 + 4 + 4

// recordSize returns the exact on-wire byte length of a record,
// letting internal/database compute binlogExcessLength contributions
// without re-encoding the record.
func recordSize(keySize int, kind Kind, partsOrKeys int) int {
	switch kind {
	case KindStore:
		return 1 + keySize + storeFieldsSize
	case KindStoreWithTime:
		return 1 + keySize + storeFieldsSize + 16
	case KindMultiStore:
		return 1 + 4 + partsOrKeys*(keySize+storeFieldsSize)
	case KindMultiStoreWithTime:
		return 1 + 16 + 4 + partsOrKeys*(keySize+storeFieldsSize)
	case KindMultiRemove:
		return 1 + 4 + partsOrKeys*keySize
	case KindMultiAccess:
		return 1 + 16 + 4 + partsOrKeys*keySize
	default:
		return 0
	}
}

// RecordSize returns the exact on-wire byte length r occupies, for
// internal/database's binlogExcessLength bookkeeping during replay and
// live appends without re-encoding the record.
func RecordSize(keySize int, r Record) int64 {
	n := len(r.Parts)
	if n == 0 {
		n = len(r.Keys)
	}
	return int64(recordSize(keySize, r.Kind, n))
}

func encodeStoreFields(buf []byte, p place.ID, tag uint8, size int32, checksum uint32) []byte {
	buf = append(buf, p[:]...)
	buf = append(buf, tag)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(size))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], checksum)
	buf = append(buf, tmp[:]...)
	return buf
}

// appendTimePoint writes the relative and wall-clock halves of a time
// point, in that order, onto buf.
func appendTimePoint(buf []byte, relative uint64, system int64) []byte {
	var tmp [16]byte
	binary.LittleEndian.PutUint64(tmp[0:8], relative)
	binary.LittleEndian.PutUint64(tmp[8:16], uint64(system))
	return append(buf, tmp[:]...)
}

func decodeTimePoint(buf []byte) (relative uint64, system int64) {
	relative = binary.LittleEndian.Uint64(buf[0:8])
	system = int64(binary.LittleEndian.Uint64(buf[8:16]))
	return
}

func decodeStoreFields(buf []byte) (p place.ID, tag uint8, size int32, checksum uint32) {
	copy(p[:], buf[0:place.Size])
	tag = buf[place.Size]
	off := place.Size + 1
	size = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	checksum = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	return
}

// encode renders r as its on-wire byte form for keySize-wide keys.
func encode(keySize int, r Record) ([]byte, error) {
	switch r.Kind {
	case KindStore:
		if len(r.Key) != keySize {
			return nil, fmt.Errorf("binlog: key length %d != %d", len(r.Key), keySize)
		}
		buf := make([]byte, 0, recordSize(keySize, r.Kind, 0))
		buf = append(buf, byte(r.Kind))
		buf = append(buf, r.Key...)
		buf = encodeStoreFields(buf, r.Place, r.Tag, r.Size, r.Checksum)
		return buf, nil

	case KindStoreWithTime:
		if len(r.Key) != keySize {
			return nil, fmt.Errorf("binlog: key length %d != %d", len(r.Key), keySize)
		}
		buf := make([]byte, 0, recordSize(keySize, r.Kind, 0))
		buf = append(buf, byte(r.Kind))
		buf = append(buf, r.Key...)
		buf = encodeStoreFields(buf, r.Place, r.Tag, r.Size, r.Checksum)
		buf = appendTimePoint(buf, r.Time, r.System)
		return buf, nil

	case KindMultiStore, KindMultiStoreWithTime:
		withTime := r.Kind == KindMultiStoreWithTime
		buf := make([]byte, 0, recordSize(keySize, r.Kind, len(r.Parts)))
		buf = append(buf, byte(r.Kind))
		if withTime {
			buf = appendTimePoint(buf, r.Time, r.System)
		}
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(r.Parts)))
		buf = append(buf, tmp4[:]...)
		for _, part := range r.Parts {
			if len(part.Key) != keySize {
				return nil, fmt.Errorf("binlog: part key length %d != %d", len(part.Key), keySize)
			}
			buf = append(buf, part.Key...)
			buf = encodeStoreFields(buf, part.Place, part.Tag, part.Size, part.Checksum)
		}
		return buf, nil

	case KindMultiRemove:
		buf := make([]byte, 0, recordSize(keySize, r.Kind, len(r.Keys)))
		buf = append(buf, byte(r.Kind))
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(r.Keys)))
		buf = append(buf, tmp4[:]...)
		for _, k := range r.Keys {
			if len(k) != keySize {
				return nil, fmt.Errorf("binlog: key length %d != %d", len(k), keySize)
			}
			buf = append(buf, k...)
		}
		return buf, nil

	case KindMultiAccess:
		buf := make([]byte, 0, recordSize(keySize, r.Kind, len(r.Keys)))
		buf = append(buf, byte(r.Kind))
		buf = appendTimePoint(buf, r.Time, r.System)
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(r.Keys)))
		buf = append(buf, tmp4[:]...)
		for _, k := range r.Keys {
			if len(k) != keySize {
				return nil, fmt.Errorf("binlog: key length %d != %d", len(k), keySize)
			}
			buf = append(buf, k...)
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("binlog: unrecognised kind %d", r.Kind)
	}
}
