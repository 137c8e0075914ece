package templatestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"facegate/internal/device"
)

// File layout, little endian:
//
//	magic "FGDB" | version u16 | count u32
//	count × (idLen u16 | id | tplLen u32 | tpl)
//	crc32 (IEEE) of everything above
const (
	magic         = "FGDB"
	formatVersion = 1
	headerSize    = len(magic) + 2 + 4
	trailerSize   = 4
)

var (
	// ErrCorrupt reports a database file that failed structural checks.
	ErrCorrupt = errors.New("template database corrupt")
	// ErrVersion reports a database written by an unsupported format version.
	ErrVersion = errors.New("template database version unsupported")
)

func encode(entries []Entry) ([]byte, error) {
	size := headerSize + trailerSize
	for _, entry := range entries {
		size += 2 + len(entry.Identity) + 4 + entry.Template.Len()
	}
	buf := make([]byte, 0, size)
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint16(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for _, entry := range entries {
		if len(entry.Identity) > math.MaxUint16 {
			return nil, fmt.Errorf("identity %.32q... exceeds %d bytes", entry.Identity, math.MaxUint16)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entry.Identity)))
		buf = append(buf, entry.Identity...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(entry.Template.Len()))
		buf = append(buf, entry.Template.Bytes()...)
	}
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf)), nil
}

func decode(data []byte) ([]Entry, error) {
	if len(data) < headerSize+trailerSize || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	body := data[:len(data)-trailerSize]
	if want := binary.LittleEndian.Uint32(data[len(body):]); crc32.ChecksumIEEE(body) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint16(body[len(magic):]); version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	count := binary.LittleEndian.Uint32(body[len(magic)+2:])
	r := reader{buf: body[headerSize:]}

	entries := make([]Entry, 0, min(int(count), 1024))
	seen := make(map[string]struct{}, cap(entries))
	for i := uint32(0); i < count; i++ {
		idLen, ok := r.uint16()
		if !ok {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrCorrupt, i)
		}
		id, ok := r.bytes(int(idLen))
		if !ok {
			return nil, fmt.Errorf("%w: truncated identity %d", ErrCorrupt, i)
		}
		tplLen, ok := r.uint32()
		if !ok {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrCorrupt, i)
		}
		tpl, ok := r.bytes(int(tplLen))
		if !ok {
			return nil, fmt.Errorf("%w: truncated template %d", ErrCorrupt, i)
		}
		identity := normalizeIdentity(string(id))
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		entries = append(entries, Entry{Template: device.NewTemplate(tpl), Identity: identity})
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	return entries, nil
}

type reader struct {
	buf []byte
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || n > len(r.buf) {
		return nil, false
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, true
}

func (r *reader) uint16() (uint16, bool) {
	b, ok := r.bytes(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (r *reader) uint32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
