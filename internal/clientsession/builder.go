// Package clientsession assembles the TCP frames a client sends to the
// Harp sound card bridge: the HEADER frame plus the stream of DATA
// frames, built from a waveform.Waveform and user-supplied metadata.
package clientsession

import (
	"fmt"

	"github.com/harp-labs/soundcard-bridge/internal/frame"
	"github.com/harp-labs/soundcard-bridge/internal/waveform"
)

// Builder holds a borrowed waveform view plus the metadata needed to
// build a complete upload session's worth of TCP frames.
type Builder struct {
	wave         waveform.Waveform
	metadata     waveform.Metadata
	fileMetadata waveform.FileMetadata

	packetsSent int
	bytesSent   int
}

// NewBuilder creates a Builder over wave. soundIndex, sampleRate and
// dataType populate the metadata record; SoundFileSizeInSamples is
// derived from wave itself.
func NewBuilder(wave waveform.Waveform, soundIndex, sampleRate, dataType int32) *Builder {
	return &Builder{
		wave: wave,
		metadata: waveform.Metadata{
			SoundIndex:             soundIndex,
			SoundFileSizeInSamples: int32(wave.Samples()),
			SampleRate:             sampleRate,
			DataType:               dataType,
		},
	}
}

// TotalPackets returns the number of DATA packets (including the
// header's embedded first block, when present) needed to carry the whole
// waveform.
func (b *Builder) TotalPackets() int { return b.wave.TotalPackets() }

// SetSoundFilename sets the sound filename region of the file-metadata block.
func (b *Builder) SetSoundFilename(s string) { b.fileMetadata.SetSoundFilename(s) }

// SetMetadataFilename sets the metadata filename region of the file-metadata block.
func (b *Builder) SetMetadataFilename(s string) { b.fileMetadata.SetMetadataFilename(s) }

// SetDescriptionFilename sets the description filename region of the file-metadata block.
func (b *Builder) SetDescriptionFilename(s string) { b.fileMetadata.SetDescriptionFilename(s) }

// SetMetadataContent sets the metadata file content region of the file-metadata block.
func (b *Builder) SetMetadataContent(s string) { b.fileMetadata.SetMetadataContent(s) }

// SetDescriptionContent sets the description file content region of the file-metadata block.
func (b *Builder) SetDescriptionContent(s string) { b.fileMetadata.SetDescriptionContent(s) }

// BuildHeader assembles the HEADER frame. withData embeds the first
// 32768-byte block inline (kind FULL) rather than requiring a follow-up
// DATA frame for index 0 (kind NO_DATA); withFileMetadata attaches the
// 2048-byte file-metadata block. MIN headers carry neither.
func (b *Builder) BuildHeader(withData, withFileMetadata bool) ([]byte, error) {
	kind := frame.KindMin
	switch {
	case withData && withFileMetadata:
		kind = frame.KindFull
	case !withData && withFileMetadata:
		kind = frame.KindNoData
	}

	var fileMetadataBytes []byte
	if kind.WithFileMetadata() {
		fileMetadataBytes = b.fileMetadata.Bytes()
	}

	var firstBlock []byte
	if kind.WithData() {
		firstBlock = b.wave.Block(0)
	}

	raw, err := frame.PackHeader(kind, b.metadata.Bytes(), fileMetadataBytes, firstBlock)
	if err != nil {
		return nil, err
	}
	if kind.WithData() {
		b.recordSent(len(raw))
	}
	return raw, nil
}

// BuildDataPacket builds the DATA frame for packet index i, i in
// [1, TotalPackets()): index 0's bytes travel inside a FULL header, not
// as a standalone DATA frame. The final packet is zero-padded by
// frame.PackData if the waveform ends mid-block.
func (b *Builder) BuildDataPacket(i int) ([]byte, error) {
	if i < 1 || i >= b.wave.TotalPackets() {
		return nil, fmt.Errorf("clientsession: data packet index %d out of range [1, %d)", i, b.wave.TotalPackets())
	}
	raw, err := frame.PackData(int32(i), b.wave.Block(i))
	if err != nil {
		return nil, err
	}
	b.recordSent(len(raw))
	return raw, nil
}

func (b *Builder) recordSent(n int) {
	b.packetsSent++
	b.bytesSent += n
}

// Stats returns the number of packets and bytes built so far, for
// bandwidth reporting after a transfer.
func (b *Builder) Stats() (packets, bytesSent int) {
	return b.packetsSent, b.bytesSent
}
