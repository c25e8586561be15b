// Package recorder persists the distributed event stream into CRC-framed
// segment files and replays them for the replay feed.
package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 32
	recordChecksumSize        = 4
)

// RecordKind distinguishes the two record types in a segment.
type RecordKind uint16

const (
	// RecordSymbol defines a symbol-id-to-name mapping; written once per
	// symbol before its first event so replay can rebuild the mapping.
	RecordSymbol RecordKind = 1
	// RecordEvent carries one encoded DataEvent.
	RecordEvent RecordKind = 2
)

var (
	recordMagic = [4]byte{'T', 'F', 'R', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("segment invalid magic")
	ErrUnsupportedRecordVer    = errors.New("segment unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("segment invalid header size")
)

// RecordHeader is the fixed metadata in front of every record payload.
type RecordHeader struct {
	Kind RecordKind
	Seq  uint64
	Ts   int64
}

func encodeHeader(dst []byte, header RecordHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Kind))
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], header.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(header.Ts))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

// EncodeSymbolPayload builds a RecordSymbol payload: the numeric id
// followed by the symbol text.
func EncodeSymbolPayload(dst []byte, id uint32, name string) []byte {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint32(dst, id)
	return append(dst, name...)
}

// DecodeSymbolPayload parses a RecordSymbol payload.
func DecodeSymbolPayload(src []byte) (uint32, string, bool) {
	if len(src) < 5 {
		return 0, "", false
	}
	return binary.LittleEndian.Uint32(src[0:4]), string(src[4:]), true
}

func decodeRecordHeader(src []byte) (RecordHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return RecordHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return RecordHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return RecordHeader{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return RecordHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[12:16])
	h := RecordHeader{
		Kind: RecordKind(binary.LittleEndian.Uint16(src[8:10])),
		Seq:  binary.LittleEndian.Uint64(src[16:24]),
		Ts:   int64(binary.LittleEndian.Uint64(src[24:32])),
	}
	return h, payloadLen, nil
}
