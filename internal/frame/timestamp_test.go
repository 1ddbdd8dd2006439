package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Unix(0, 0).UTC(),
		time.Unix(1700000000, 0).UTC(),
		time.Unix(1700000000, 500_000_000).UTC(),
		time.Unix(4294967294, 999_000_000).UTC(),
	}

	for _, tc := range cases {
		packed := PackTimestamp(tc)
		b := packed.Bytes()
		parsed, err := ParseTimestamp(b[:])
		require.NoError(t, err)

		want := float64(tc.Unix()) + float64(tc.Nanosecond())/1e9
		assert.InDelta(t, want, parsed.Float(), 32e-6)
	}
}

func TestTimestampTicksClamped(t *testing.T) {
	ts := Timestamp{Seconds: 1, Ticks: math.MaxUint16}
	b := ts.Bytes()
	got, err := ParseTimestamp(b[:])
	require.NoError(t, err)
	assert.Equal(t, ts, got)
}
