package frame

import "encoding/binary"

// PackData builds a DATA frame carrying the given packet index and data
// block. block is zero-padded up to DataBlockSize if shorter (the final
// packet of an upload is typically short); it is an error for block to be
// longer than DataBlockSize.
func PackData(index int32, block []byte) ([]byte, error) {
	if len(block) > DataBlockSize {
		return nil, &FramingError{Reason: "data block exceeds DataBlockSize"}
	}

	buf := make([]byte, DataFrameSize)
	copy(buf, dataPreamble[:])

	off := PreambleLong
	binary.LittleEndian.PutUint32(buf[off:off+DataIndexSize], uint32(index))
	off += DataIndexSize

	copy(buf[off:off+len(block)], block)

	buf[len(buf)-1] = Checksum(buf[:len(buf)-1])
	return buf, nil
}

// ParseDataIndex extracts the little-endian packet index from a complete,
// already-read DATA frame.
func ParseDataIndex(raw []byte) (int32, error) {
	if len(raw) != DataFrameSize {
		return 0, &FramingError{Reason: "unexpected data frame length"}
	}
	return int32(binary.LittleEndian.Uint32(raw[PreambleLong : PreambleLong+DataIndexSize])), nil
}

// ParseDataBlock extracts the 32768-byte data block from a complete,
// already-read DATA frame.
func ParseDataBlock(raw []byte) ([]byte, error) {
	if len(raw) != DataFrameSize {
		return nil, &FramingError{Reason: "unexpected data frame length"}
	}
	off := PreambleLong + DataIndexSize
	return raw[off : off+DataBlockSize], nil
}
