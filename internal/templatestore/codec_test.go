package templatestore

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"facegate/internal/device"
)

func rawDatabase(version uint16, ids ...string) []byte {
	buf := []byte(magic)
	buf = binary.LittleEndian.AppendUint16(buf, version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(id)))
		buf = append(buf, id...)
		buf = binary.LittleEndian.AppendUint32(buf, 2)
		buf = append(buf, 0xAB, 0xCD)
	}
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

func TestDecodeStripsTrailingNUL(t *testing.T) {
	entries, err := decode(rawDatabase(formatVersion, "alice\x00", "bob"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].Identity != "alice" || entries[1].Identity != "bob" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !entries[0].Template.Equal(device.NewTemplate([]byte{0xAB, 0xCD})) {
		t.Fatalf("unexpected template %v", entries[0].Template.Bytes())
	}
}

func TestDecodeRejectsVersionAndTruncation(t *testing.T) {
	if _, err := decode(rawDatabase(9, "a")); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
	if _, err := decode([]byte("FG")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for short file, got %v", err)
	}

	data := rawDatabase(formatVersion, "a")
	binary.LittleEndian.PutUint32(data[len(magic)+2:], 5)
	body := data[:len(data)-4]
	binary.LittleEndian.PutUint32(data[len(body):], crc32.ChecksumIEEE(body))
	if _, err := decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for count overrun, got %v", err)
	}
}

func TestEncodeDecodeEmpty(t *testing.T) {
	data, err := encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	entries, err := decode(data)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty database, got %v %v", entries, err)
	}
}
