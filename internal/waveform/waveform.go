// Package waveform holds the data-model entities shared by the client
// session builder and the sound generation collaborator: the waveform
// byte view itself, the metadata record, and the file-metadata block.
package waveform

import "fmt"

// DataBlockSize is the size, in bytes, of one upload data block. Kept
// here (duplicating frame.DataBlockSize) so this package has no
// dependency on package frame: it describes the data model, not the
// wire framing built on top of it.
const DataBlockSize = 32768

// Waveform is a borrowed, read-only byte view over a stereo, 16-bit
// little-endian interleaved sample buffer. It never copies or mutates the
// underlying bytes; callers own the buffer for its lifetime.
type Waveform struct {
	bytes []byte
}

// New wraps raw stereo sample bytes as a Waveform. The length must be a
// multiple of 4 (one int32 per stereo sample pair).
func New(b []byte) (Waveform, error) {
	if len(b)%4 != 0 {
		return Waveform{}, fmt.Errorf("waveform: byte length %d is not a multiple of 4", len(b))
	}
	return Waveform{bytes: b}, nil
}

// Bytes returns the borrowed byte view. Callers must not mutate it.
func (w Waveform) Bytes() []byte { return w.bytes }

// Samples returns the number of stereo samples in the waveform.
func (w Waveform) Samples() int { return len(w.bytes) / 4 }

// TotalPackets returns ceil(len(bytes) / DataBlockSize), the number of
// DATA packets (including the header's embedded first block, when
// present) needed to carry the whole waveform.
func (w Waveform) TotalPackets() int {
	n := len(w.bytes)
	packets := n / DataBlockSize
	if n%DataBlockSize != 0 {
		packets++
	}
	return packets
}

// Block returns the i'th DataBlockSize-byte block (0-indexed), which may
// be shorter than DataBlockSize for the final block.
func (w Waveform) Block(i int) []byte {
	start := i * DataBlockSize
	if start >= len(w.bytes) {
		return nil
	}
	end := start + DataBlockSize
	if end > len(w.bytes) {
		end = len(w.bytes)
	}
	return w.bytes[start:end]
}
