// Package wire frames locally stored entries with the generations they were
// written under.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	hdrLen  = 4 + 1 + 1 + 8 + 2 // magic | ver | kind | epoch | n
	maxTags = 0xFFFF
)

var (
	ErrCorrupt    = errors.New("tagcache: corrupt entry")
	ErrTooManyTag = errors.New("tagcache: too many prefixes on one entry")
	ErrTagLength  = errors.New("tagcache: invalid prefix length")
	magic4        = [...]byte{'T', 'A', 'G', 'C'}
)

// Tag is one prefix membership and the prefix's generation at write time.
type Tag struct {
	Prefix string
	Gen    uint64
}

type Entry struct {
	Epoch   uint64
	Tags    []Tag
	Payload []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode lays out:
//
//	magic(4) | ver(1) | kind(1) | epoch(u64 be) | n(u16 be)
//	plen(u16 be) | prefix(plen) | gen(u64 be)   * n
//	vlen(u32 be) | payload(vlen)
func Encode(e Entry) ([]byte, error) {
	if len(e.Tags) > maxTags {
		return nil, ErrTooManyTag
	}
	total := hdrLen + 4 + len(e.Payload)
	for _, t := range e.Tags {
		if l := len(t.Prefix); l == 0 || l > 0xFFFF {
			return nil, ErrTagLength
		}
		total += 2 + len(t.Prefix) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], e.Epoch)
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])

	for _, t := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t.Prefix)))
		buf.Write(u2[:])
		buf.WriteString(t.Prefix)

		binary.BigEndian.PutUint64(u8[:], t.Gen)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	return buf.Bytes(), nil
}

// Decode is strict: any truncation, unknown header or trailing byte is
// ErrCorrupt. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6
	epoch := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	var tags []Tag
	if n > 0 {
		tags = make([]Tag, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		plen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if plen == 0 || plen > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		prefix := string(b[off : off+plen])
		off += plen

		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8

		tags = append(tags, Tag{Prefix: prefix, Gen: gen})
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{Epoch: epoch, Tags: tags, Payload: b[off : off+vlen]}, nil
}
