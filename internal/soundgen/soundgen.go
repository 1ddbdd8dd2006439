// Package soundgen synthesizes stereo test tones: a sine per channel with
// optional window shaping, producing the 16-bit interleaved waveform
// layout the upload protocol carries. It is intentionally small; the
// protocol core lives in packages frame, clientsession, usbdevice and
// server.
package soundgen

import "math"

// WindowFunction names a shaping window applied to the start or end of a
// channel's tone.
type WindowFunction int

const (
	// WindowNone applies no shaping.
	WindowNone WindowFunction = iota
	// WindowBlackman applies a Blackman window.
	WindowBlackman
	// WindowBartlett applies a Bartlett (triangular) window.
	WindowBartlett
	// WindowHann applies a Hann window.
	WindowHann
)

// ChannelWindow configures window shaping for one stereo channel: how
// long (in seconds) the tone runs, and whether a window is applied to its
// start and/or end.
type ChannelWindow struct {
	Duration   float64
	ApplyStart bool
	ApplyEnd   bool
	Function   WindowFunction
}

// Config holds the per-channel window shaping configuration for Generate.
type Config struct {
	Left  ChannelWindow
	Right ChannelWindow
}

// Generate synthesizes a stereo waveform of the given duration (seconds)
// at sample rate fs, with freqLeft/freqRight Hz sine tones on each
// channel, shaped by cfg. The result is stereo-interleaved 16-bit
// little-endian samples packed two-per-int32 (left in the low half,
// right in the high half), the layout waveform.New expects.
func Generate(fs int, duration float64, freqLeft, freqRight float64, cfg Config) []byte {
	n := int(float64(fs) * duration)
	out := make([]byte, n*4)

	for i := 0; i < n; i++ {
		t := float64(i) / float64(fs)
		left := sample(t, freqLeft, fs, n, i, cfg.Left)
		right := sample(t, freqRight, fs, n, i, cfg.Right)

		off := i * 4
		putInt16LE(out[off:off+2], left)
		putInt16LE(out[off+2:off+4], right)
	}
	return out
}

func sample(t, freq float64, fs, n, i int, cw ChannelWindow) int16 {
	v := math.Sin(2 * math.Pi * freq * t)
	v *= windowGain(cw, n, i)
	return int16(v * math.MaxInt16)
}

// windowGain returns the shaping gain at sample i of n for the given
// channel window configuration.
func windowGain(cw ChannelWindow, n, i int) float64 {
	if cw.Function == WindowNone || n <= 1 {
		return 1
	}
	frac := float64(i) / float64(n-1)

	var w float64
	switch cw.Function {
	case WindowBlackman:
		w = 0.42 - 0.5*math.Cos(2*math.Pi*frac) + 0.08*math.Cos(4*math.Pi*frac)
	case WindowBartlett:
		w = 1 - math.Abs(2*frac-1)
	case WindowHann:
		w = 0.5 * (1 - math.Cos(2*math.Pi*frac))
	default:
		w = 1
	}

	// Only apply the window at the requested edges, holding full gain
	// through the middle of the tone.
	atStart := frac < 0.5
	if atStart && !cw.ApplyStart {
		return 1
	}
	if !atStart && !cw.ApplyEnd {
		return 1
	}
	return w
}

func putInt16LE(b []byte, v int16) {
	u := uint16(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
}
