package clientsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harp-labs/soundcard-bridge/internal/frame"
	"github.com/harp-labs/soundcard-bridge/internal/waveform"
)

func TestBuildHeaderFull(t *testing.T) {
	wave, err := waveform.New(make([]byte, 32768))
	require.NoError(t, err)

	b := NewBuilder(wave, 2, 96000, 0)
	b.SetSoundFilename("a")
	b.SetMetadataFilename("b")

	raw, err := b.BuildHeader(true, true)
	require.NoError(t, err)
	assert.Len(t, raw, frame.FullHeaderSize)
	assert.True(t, frame.Verify(raw))

	kind, err := frame.HeaderKind(raw[:frame.PreambleLong])
	require.NoError(t, err)
	assert.Equal(t, frame.KindFull, kind)
}

func TestBuildHeaderMin(t *testing.T) {
	wave, err := waveform.New(make([]byte, 32768))
	require.NoError(t, err)

	b := NewBuilder(wave, 2, 96000, 0)
	raw, err := b.BuildHeader(false, false)
	require.NoError(t, err)
	assert.Len(t, raw, frame.MinHeaderSize)
	assert.True(t, frame.Verify(raw))
}

func TestDataPacketNumbering(t *testing.T) {
	raw := make([]byte, 98304)
	for i := range raw {
		raw[i] = byte(i)
	}
	wave, err := waveform.New(raw)
	require.NoError(t, err)
	b := NewBuilder(wave, 0, 96000, 0)

	assert.Equal(t, 3, b.TotalPackets())

	p1, err := b.BuildDataPacket(1)
	require.NoError(t, err)
	idx, err := frame.ParseDataIndex(p1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx)

	block, err := frame.ParseDataBlock(p1)
	require.NoError(t, err)
	assert.Equal(t, raw[32768:65536], block, "packet 1 carries the second block of the waveform")

	_, err = b.BuildDataPacket(0)
	assert.Error(t, err, "index 0 travels inside the header, not as a DATA frame")

	_, err = b.BuildDataPacket(3)
	assert.Error(t, err, "3 is out of range for TotalPackets()==3")
}

func TestStatsAccumulate(t *testing.T) {
	wave, err := waveform.New(make([]byte, 98304))
	require.NoError(t, err)
	b := NewBuilder(wave, 0, 96000, 0)

	_, err = b.BuildHeader(true, true)
	require.NoError(t, err)
	_, err = b.BuildDataPacket(1)
	require.NoError(t, err)

	packets, bytesSent := b.Stats()
	assert.Equal(t, 2, packets)
	assert.Equal(t, frame.FullHeaderSize+frame.DataFrameSize, bytesSent)
}
