package waveform

import "encoding/binary"

// MetadataSize is the fixed wire size of a Metadata record.
const MetadataSize = 16

// Metadata is the 16-byte metadata record prefixing every header frame:
// four little-endian 32-bit integers.
type Metadata struct {
	SoundIndex             int32
	SoundFileSizeInSamples int32
	SampleRate             int32
	DataType               int32
}

// Bytes encodes the metadata record into its 16-byte wire form.
func (m Metadata) Bytes() [MetadataSize]byte {
	var b [MetadataSize]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.SoundIndex))
	binary.LittleEndian.PutUint32(b[4:8], uint32(m.SoundFileSizeInSamples))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.SampleRate))
	binary.LittleEndian.PutUint32(b[12:16], uint32(m.DataType))
	return b
}

// ParseMetadata decodes a 16-byte wire metadata record.
func ParseMetadata(b []byte) Metadata {
	return Metadata{
		SoundIndex:             int32(binary.LittleEndian.Uint32(b[0:4])),
		SoundFileSizeInSamples: int32(binary.LittleEndian.Uint32(b[4:8])),
		SampleRate:             int32(binary.LittleEndian.Uint32(b[8:12])),
		DataType:               int32(binary.LittleEndian.Uint32(b[12:16])),
	}
}
