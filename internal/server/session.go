// Package server implements the TCP-facing half of the bridge: the
// per-connection session state machine and the listener that admits one
// session at a time onto the shared USB device.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harp-labs/soundcard-bridge/internal/frame"
	"github.com/harp-labs/soundcard-bridge/internal/usbdevice"
	"github.com/harp-labs/soundcard-bridge/internal/waveform"
)

// Reply-read timeouts for the two USB commands a session issues.
const (
	headerCmdTimeout = 1000 * time.Millisecond
	dataCmdTimeout   = 400 * time.Millisecond
)

// device is the slice of *usbdevice.Device a Session needs. Declaring it
// here (rather than taking the concrete type) lets session_test.go drive
// the state machine against a fake device instead of real USB hardware.
type device interface {
	SendCmd(ctx context.Context, payload []byte, timeout time.Duration) error
}

// Session drives one client connection through the upload state machine:
// AWAIT_HEADER -> HEADER_TO_DEVICE -> ACK_HEADER -> (AWAIT_FIRST_BLOCK_IF_NEEDED)
// -> LOOP_DATA -> AWAIT_EOF -> FINAL_OK -> CLOSED, or one of the terminal
// error states (FATAL_DEVICE_ERROR, CLIENT_DISCONNECTED, BAD_FRAME).
type Session struct {
	conn   net.Conn
	device device
	logger *log.Logger
}

// NewSession wraps conn and the shared device handle for a single upload.
func NewSession(conn net.Conn, dev device, logger *log.Logger) *Session {
	return &Session{conn: conn, device: dev, logger: logger}
}

// Run drives the session to completion. It returns nil for a clean
// upload (or a disconnect before any header arrived); any other return
// value names which terminal error state the session ended in.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.SetDeadline(time.Now()) })
	defer stop()

	kind, raw, err := frame.ReadHeader(s.conn)
	if err != nil {
		if isDisconnect(err) {
			return nil
		}
		s.logger.Warn("malformed header preamble, closing without reply", "err", err)
		return err
	}

	if !frame.Verify(raw) {
		s.sendReply(kind, true)
		return &frame.FramingError{Kind: kind, Reason: "header checksum mismatch"}
	}

	metadata, err := frame.ParseHeaderMetadata(kind, raw)
	if err != nil {
		return err
	}
	fileMetadata := frame.ParseHeaderFileMetadata(kind, raw)

	meta := waveform.ParseMetadata(metadata[:])
	totalPackets := ceilDiv(int(meta.SoundFileSizeInSamples)*4, frame.DataBlockSize)
	s.logger.Info("header received", "kind", kind, "sound_index", meta.SoundIndex, "total_packets", totalPackets)

	var firstBlock []byte
	if kind.WithData() {
		firstBlock = frame.ParseHeaderFirstBlock(kind, raw)
	} else {
		// The client won't send the first block until it knows the header
		// was accepted, so this reply goes out before the block is known.
		if err := s.sendReply(kind, false); err != nil {
			return &ClientDisconnect{}
		}
		block, err := s.awaitFirstBlock()
		if err != nil {
			return err
		}
		firstBlock = block
	}

	payload := usbdevice.BuildMetadataPayload(metadata, firstBlock, fileMetadata)
	if err := s.device.SendCmd(ctx, payload, headerCmdTimeout); err != nil {
		s.logger.Error("usb header command failed, abandoning session", "err", err)
		return err
	}

	// The header is acked once the device has taken it, for every kind; a
	// with_data=false session therefore sees two replies before its data
	// loop, the early one above plus this one.
	if err := s.sendReply(kind, false); err != nil {
		return &ClientDisconnect{}
	}

	acked, err := s.loopData(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("upload complete", "data_frames_acked", acked)

	if _, err := s.conn.Write([]byte("OK")); err != nil {
		return &ClientDisconnect{Clean: true}
	}
	return nil
}

// awaitFirstBlock reads the DATA frame carrying packet index 0, for
// headers that didn't embed it. A checksum failure here gets an error
// reply tagged KindDataAck before the session closes; an unexpected
// index is a protocol violation closed without any reply.
func (s *Session) awaitFirstBlock() ([]byte, error) {
	raw, err := frame.ReadData(s.conn)
	if err != nil {
		if isDisconnect(err) {
			return nil, &ClientDisconnect{}
		}
		return nil, err
	}
	if !frame.VerifyDataPreamble(raw) || !frame.Verify(raw) {
		s.sendReply(frame.KindDataAck, true)
		return nil, &frame.FramingError{Kind: frame.KindDataAck, Reason: "first data frame checksum mismatch"}
	}
	idx, err := frame.ParseDataIndex(raw)
	if err != nil {
		return nil, err
	}
	if idx != 0 {
		return nil, &ProtocolViolation{Reason: fmt.Sprintf("expected first data frame index 0, got %d", idx)}
	}
	return frame.ParseDataBlock(raw)
}

// loopData reads DATA frames until the client half-closes or disconnects,
// forwarding each to the device and replying per frame. It has no way to
// know how many packets the upload holds, so it forwards whatever
// arrives until EOF rather than enforcing an upper bound.
func (s *Session) loopData(ctx context.Context) (acked int, err error) {
	for {
		raw, err := frame.ReadData(s.conn)
		if err != nil {
			if isDisconnect(err) {
				return acked, nil
			}
			return acked, err
		}

		if !frame.VerifyDataPreamble(raw) || !frame.Verify(raw) {
			s.sendReply(frame.KindDataAck, true)
			continue
		}

		idx, err := frame.ParseDataIndex(raw)
		if err != nil {
			return acked, err
		}
		block, err := frame.ParseDataBlock(raw)
		if err != nil {
			return acked, err
		}

		payload := usbdevice.BuildDataPayload(idx, block)
		if err := s.device.SendCmd(ctx, payload, dataCmdTimeout); err != nil {
			s.logger.Error("usb data command failed, abandoning session", "err", err, "index", idx)
			return acked, err
		}

		if err := s.sendReply(frame.KindDataAck, false); err != nil {
			return acked, &ClientDisconnect{Clean: false}
		}
		acked++
	}
}

func (s *Session) sendReply(kindTag frame.Kind, withError bool) error {
	ts := frame.PackTimestamp(time.Now())
	reply := frame.PackReply(kindTag, ts, withError)
	_, err := s.conn.Write(reply)
	return err
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
