package frame

import (
	"encoding/binary"
	"math"
	"time"
)

// tickDuration is the duration of one timestamp "tick": 32 microseconds.
const tickDuration = 32e-6

// Timestamp is the 6-byte on-wire reply timestamp: a little-endian
// uint32 count of whole seconds plus a little-endian uint16 count of
// 32-microsecond ticks within that second.
type Timestamp struct {
	Seconds uint32
	Ticks   uint16
}

// PackTimestamp converts a wall-clock time into the on-wire Timestamp
// representation: seconds = floor(t), ticks = round(fractional part /
// 32us), clamped to the 16-bit range.
func PackTimestamp(t time.Time) Timestamp {
	sec := t.Unix()
	frac := float64(t.Nanosecond()) / 1e9
	ticks := math.Round(frac / tickDuration)
	if ticks > math.MaxUint16 {
		ticks = math.MaxUint16
	}
	if ticks < 0 {
		ticks = 0
	}
	return Timestamp{Seconds: uint32(sec), Ticks: uint16(ticks)}
}

// Float returns the timestamp as a floating point number of seconds.
func (ts Timestamp) Float() float64 {
	return float64(ts.Seconds) + float64(ts.Ticks)*tickDuration
}

// Bytes encodes the timestamp into its 6-byte wire representation.
func (ts Timestamp) Bytes() [TimestampSize]byte {
	var b [TimestampSize]byte
	binary.LittleEndian.PutUint32(b[0:4], ts.Seconds)
	binary.LittleEndian.PutUint16(b[4:6], ts.Ticks)
	return b
}

// ParseTimestamp decodes a 6-byte wire timestamp.
func ParseTimestamp(b []byte) (Timestamp, error) {
	if len(b) != TimestampSize {
		return Timestamp{}, &FramingError{Reason: "timestamp must be TimestampSize bytes"}
	}
	return Timestamp{
		Seconds: binary.LittleEndian.Uint32(b[0:4]),
		Ticks:   binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}
