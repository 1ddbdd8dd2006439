package frame

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataBytes(t *testing.T, soundIndex, samples, sampleRate, dataType int32) [MetadataSize]byte {
	t.Helper()
	var b [MetadataSize]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(soundIndex))
	binary.LittleEndian.PutUint32(b[4:8], uint32(samples))
	binary.LittleEndian.PutUint32(b[8:12], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[12:16], uint32(dataType))
	return b
}

func TestPackHeaderMin(t *testing.T) {
	md := metadataBytes(t, 4, 0, 96000, 0)

	got, err := PackHeader(KindMin, md, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, MinHeaderSize)

	want := []byte{
		0x02, 0x14, 0x82, 0xFF, 0x01, // preamble
		0x04, 0x00, 0x00, 0x00, // sound_index = 4
		0x00, 0x00, 0x00, 0x00, // sound_file_size_in_samples = 0
		0x00, 0x77, 0x01, 0x00, // sample_rate = 96000 LE
		0x00, 0x00, 0x00, 0x00, // data_type = 0
	}
	want = append(want, Checksum(want))

	assert.Equal(t, want, got)
	assert.True(t, Verify(got))
}

func TestPackHeaderFull(t *testing.T) {
	wave := bytes.Repeat([]byte{0}, 32768)
	for i := range wave {
		wave[i] = byte(i)
	}
	md := metadataBytes(t, 2, 8192, 96000, 0)

	var fm [FileMetadataSize]byte
	copy(fm[0:], "a")
	copy(fm[170:], "b")
	copy(fm[340:], "c")
	copy(fm[512:], "x")
	copy(fm[1536:], "y")

	got, err := PackHeader(KindFull, md, fm[:], wave)
	require.NoError(t, err)
	require.Len(t, got, FullHeaderSize)

	assert.Equal(t, []byte{0x02, 0xFF, 0x10, 0x88, 0x80, 0xFF, 0x01}, got[:7])
	assert.Equal(t, md[:], got[7:23])
	assert.Equal(t, wave, got[23:23+32768])
	fileMetaStart := 23 + 32768
	assert.Equal(t, byte('a'), got[fileMetaStart+0])
	assert.Equal(t, byte('b'), got[fileMetaStart+170])
	assert.True(t, Verify(got))
}

func TestHeaderKindDetection(t *testing.T) {
	for _, kind := range []Kind{KindFull, KindNoData, KindMin} {
		md := metadataBytes(t, 1, 0, 1000, 0)
		var fm []byte
		if kind.WithFileMetadata() {
			fm = make([]byte, FileMetadataSize)
		}
		raw, err := PackHeader(kind, md, fm, nil)
		require.NoError(t, err)

		got, err := HeaderKind(raw[:PreambleLong])
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
}

func TestPackDataFinalPacketZeroPad(t *testing.T) {
	block := []byte{1, 2, 3}
	got, err := PackData(2, block)
	require.NoError(t, err)
	require.Len(t, got, DataFrameSize)

	idx, err := ParseDataIndex(got)
	require.NoError(t, err)
	assert.EqualValues(t, 2, idx)

	data, err := ParseDataBlock(got)
	require.NoError(t, err)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, byte(2), data[1])
	assert.Equal(t, byte(3), data[2])
	assert.Zero(t, data[3])
	assert.Zero(t, data[DataBlockSize-1])

	assert.True(t, Verify(got))
	assert.True(t, VerifyDataPreamble(got))
}

func TestPackDataRejectsOversizeBlock(t *testing.T) {
	_, err := PackData(0, make([]byte, DataBlockSize+1))
	require.Error(t, err)
}

func TestChecksumRejection(t *testing.T) {
	md := metadataBytes(t, 1, 0, 1000, 0)
	fm := make([]byte, FileMetadataSize)
	wave := make([]byte, DataBlockSize)
	raw, err := PackHeader(KindFull, md, fm, wave)
	require.NoError(t, err)

	raw[len(raw)-1] ^= 0xFF
	assert.False(t, Verify(raw))
}

func TestReadHeaderRoundTrip(t *testing.T) {
	md := metadataBytes(t, 7, 0, 44100, 0)
	raw, err := PackHeader(KindMin, md, nil, nil)
	require.NoError(t, err)

	kind, got, err := ReadHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, KindMin, kind)
	assert.Equal(t, raw, got)
}

func TestReplyPackParseRoundTrip(t *testing.T) {
	ts := Timestamp{Seconds: 1700000000, Ticks: 12345}
	raw := PackReply(KindDataAck, ts, false)
	require.Len(t, raw, ReplySize)
	assert.True(t, Verify(raw))

	kindTag, gotTs, isError, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, KindDataAck, kindTag)
	assert.Equal(t, ts, gotTs)
	assert.False(t, isError)

	errRaw := PackReply(KindFull, ts, true)
	_, _, isError, err = ParseReply(errRaw)
	require.NoError(t, err)
	assert.True(t, isError)
	assert.Equal(t, byte(0x10), errRaw[0])
}
