package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	// magic(4) | ver(1) | kind(1) | storedAt(i64) | ttl(i64) | verLen(u16)
	headerLen = 4 + 1 + 1 + 8 + 8 + 2
)

var (
	ErrCorrupt = errors.New("imgcache: corrupt entry")
	// ErrTooLong means a version tag or payload does not fit its length field.
	ErrTooLong = errors.New("imgcache: record field too long")
	magic4     = [...]byte{'I', 'M', 'G', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record is the durable framing of one cache entry. Payload is opaque (codec output).
type Record struct {
	StoredAt time.Time
	TTL      time.Duration
	Version  string
	Payload  []byte
}

// Expired reports whether the record's TTL elapsed at now.
func (r Record) Expired(now time.Time) bool {
	return r.TTL > 0 && now.Sub(r.StoredAt) > r.TTL
}

// Encode frames a record:
//
//	magic(4) | ver(1) | kind(1=entry) | storedAt(unix nanos, i64 be) | ttl(nanos, i64 be)
//	verLen(u16 be) | version(verLen) | plen(u32 be) | payload(plen)
//
// A version tag longer than 65535 bytes or a payload of 4 GiB or more is ErrTooLong.
func Encode(r Record) ([]byte, error) {
	if len(r.Version) > math.MaxUint16 || uint64(len(r.Payload)) > math.MaxUint32 {
		return nil, ErrTooLong
	}
	var buf bytes.Buffer
	buf.Grow(headerLen + len(r.Version) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	var storedAt int64
	if !r.StoredAt.IsZero() {
		storedAt = r.StoredAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(storedAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(r.TTL))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Version)))
	buf.Write(u2[:])
	buf.WriteString(r.Version)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	return buf.Bytes(), nil
}

// Decode parses a framed record. Payload aliases b.
// Any length mismatch, including trailing bytes, is ErrCorrupt.
func Decode(b []byte) (Record, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Record{}, ErrCorrupt
	}
	off := 6

	storedAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	ttl := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if ttl < 0 {
		return Record{}, ErrCorrupt
	}

	vlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if vlen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	ver := string(b[off : off+vlen])
	off += vlen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // overflow-safe, no trailing bytes
		return Record{}, ErrCorrupt
	}

	r := Record{
		TTL:     time.Duration(ttl),
		Version: ver,
		Payload: b[off : off+plen],
	}
	if storedAt != 0 {
		r.StoredAt = time.Unix(0, storedAt)
	}
	return r, nil
}
