// Package frame implements the bit-exact TCP framing protocol used by the
// Harp sound card bridge: packing and parsing of the HEADER, DATA and
// reply frame layouts, their checksums, and the on-wire timestamp format.
//
// Every function here is a pure function over byte slices; none of them
// touch a socket, a USB endpoint, or the clock (aside from PackTimestamp,
// which accepts the time to encode rather than reading it itself).
package frame

import "fmt"

// Fixed region sizes, in bytes, from the wire protocol.
const (
	PreambleLong     = 7
	PreambleShort    = 5
	MetadataSize     = 16
	DataBlockSize    = 32768
	FileMetadataSize = 2048
	ChecksumSize     = 1
	DataIndexSize    = 4
	TimestampSize    = 6

	// ReplySize is the fixed length of every server->client reply frame.
	ReplySize = PreambleShort + TimestampSize + ChecksumSize

	// FullHeaderSize is the total length of a FULL (kind 128) header frame.
	FullHeaderSize = PreambleLong + MetadataSize + DataBlockSize + FileMetadataSize + ChecksumSize
	// NoDataHeaderSize is the total length of a NO_DATA (kind 129) header frame.
	NoDataHeaderSize = PreambleLong + MetadataSize + FileMetadataSize + ChecksumSize
	// MinHeaderSize is the total length of a MIN (kind 130) header frame.
	MinHeaderSize = PreambleShort + MetadataSize + ChecksumSize
	// DataFrameSize is the total length of a DATA frame.
	DataFrameSize = PreambleLong + DataIndexSize + DataBlockSize + ChecksumSize
)

// Kind discriminates the frame types that travel over TCP. The same type
// doubles as the "kind tag" echoed in server replies.
type Kind byte

// Frame kinds. KindDataAck never appears as a header/preamble tag; it is
// only ever used as the kind tag of a reply acknowledging a DATA frame.
const (
	KindFull    Kind = 128
	KindNoData  Kind = 129
	KindMin     Kind = 130
	KindDataAck Kind = 132
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "FULL"
	case KindNoData:
		return "NO_DATA"
	case KindMin:
		return "MIN"
	case KindDataAck:
		return "DATA_ACK"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// WithData reports whether a header of this kind embeds the first data
// block inline (only true for FULL headers).
func (k Kind) WithData() bool { return k == KindFull }

// WithFileMetadata reports whether a header of this kind carries the
// 2048-byte file-metadata block.
func (k Kind) WithFileMetadata() bool { return k == KindFull || k == KindNoData }

// PreambleLen returns the preamble length for a header of this kind.
func (k Kind) PreambleLen() int {
	if k == KindMin {
		return PreambleShort
	}
	return PreambleLong
}

// HeaderSize returns the total frame length for a header of this kind.
func (k Kind) HeaderSize() int {
	switch k {
	case KindFull:
		return FullHeaderSize
	case KindNoData:
		return NoDataHeaderSize
	case KindMin:
		return MinHeaderSize
	default:
		return 0
	}
}

var (
	fullPreamble   = [PreambleLong]byte{0x02, 0xFF, 0x10, 0x88, 0x80, 0xFF, 0x01}
	noDataPreamble = [PreambleLong]byte{0x02, 0xFF, 0x14, 0x08, 0x81, 0xFF, 0x01}
	minPreamble    = [PreambleShort]byte{0x02, 0x14, 0x82, 0xFF, 0x01}
	dataPreamble   = [PreambleLong]byte{0x02, 0xFF, 0x04, 0x80, 0x84, 0xFF, 0x84}
)

// Checksum computes the modular checksum used throughout the protocol:
// the sum of every byte, reduced modulo 256. Byte arithmetic wraps, so no
// explicit masking is needed.
func Checksum(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return sum
}

// Verify reports whether the last byte of frameBytes is the correct
// checksum over everything preceding it.
func Verify(frameBytes []byte) bool {
	if len(frameBytes) == 0 {
		return false
	}
	return Checksum(frameBytes[:len(frameBytes)-1]) == frameBytes[len(frameBytes)-1]
}

// FramingError reports a preamble, length or checksum violation on a
// received frame.
type FramingError struct {
	Kind   Kind
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error (kind %s): %s", e.Kind, e.Reason)
}
