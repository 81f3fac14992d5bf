package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
)

// Record layout, little endian:
//
//	0  magic "MKT1"
//	4  frame version
//	6  header size
//	8  event type
//	10 schema version
//	12 flags
//	14 reserved
//	16 payload length
//	20 seq
//	28 event time (unix ms)
//	36 payload
//	.. crc32c over header and payload
const (
	recordVersion      uint16 = 2
	recordHeaderSize          = 36
	recordChecksumSize        = 4
)

// FlagCompressed marks a zstd compressed payload.
const FlagCompressed uint16 = 1 << 0

var (
	recordMagic = [4]byte{'M', 'K', 'T', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("tape invalid magic")
	ErrUnsupportedRecordVer    = errors.New("tape unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("tape invalid header size")
	ErrChecksumMismatch        = errors.New("tape checksum mismatch")
	ErrPayloadTooLarge         = errors.New("tape payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

func encodeHeader(dst []byte, header schema.EventHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[10:12], header.Version)
	binary.LittleEndian.PutUint16(dst[12:14], header.Flags)
	binary.LittleEndian.PutUint16(dst[14:16], 0)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[20:28], header.Seq)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(header.TsEvent))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.EventHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.EventHeader{}, 0, errors.Wrapf(ErrUnsupportedRecordVer, "version %d", ver)
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		Version: binary.LittleEndian.Uint16(src[10:12]),
		Flags:   binary.LittleEndian.Uint16(src[12:14]),
		Seq:     binary.LittleEndian.Uint64(src[20:28]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[28:36])),
	}
	return h, binary.LittleEndian.Uint32(src[16:20]), nil
}
