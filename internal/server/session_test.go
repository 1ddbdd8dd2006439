package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harp-labs/soundcard-bridge/internal/frame"
	"github.com/harp-labs/soundcard-bridge/internal/usbdevice"
	"github.com/harp-labs/soundcard-bridge/internal/waveform"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// fakeDevice stands in for *usbdevice.Device: it records every command
// it's handed and can be told to fail on a specific call index.
type fakeDevice struct {
	mu      sync.Mutex
	opcodes []byte
	failAt  map[int]error
}

func (f *fakeDevice) SendCmd(_ context.Context, payload []byte, _ time.Duration) error {
	f.mu.Lock()
	idx := len(f.opcodes)
	f.opcodes = append(f.opcodes, payload[3])
	f.mu.Unlock()
	if f.failAt != nil {
		if err, ok := f.failAt[idx]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeDevice) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opcodes)
}

// newTCPPipe opens a loopback TCP connection, giving tests a CloseWrite
// half-close (net.Pipe doesn't support one, and the wire protocol's EOF
// signal depends on it).
func newTCPPipe(t *testing.T) (client *net.TCPConn, serverConn net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	serverConn = <-accepted
	t.Cleanup(func() { serverConn.Close() })
	t.Cleanup(func() { c.Close() })
	return c.(*net.TCPConn), serverConn
}

func fullHeaderFixture(t *testing.T) (raw []byte, block0, block1 []byte) {
	t.Helper()
	block0 = make([]byte, frame.DataBlockSize)
	block1 = make([]byte, frame.DataBlockSize)
	for i := range block1 {
		block1[i] = byte(i)
	}

	meta := waveform.Metadata{SoundIndex: 1, SoundFileSizeInSamples: 2 * frame.DataBlockSize / 4, SampleRate: 96000, DataType: 0}
	var fm waveform.FileMetadata
	fm.SetSoundFilename("a")

	raw, err := frame.PackHeader(frame.KindFull, meta.Bytes(), fm.Bytes(), block0)
	require.NoError(t, err)
	return raw, block0, block1
}

func TestSessionFullHeaderHappyPath(t *testing.T) {
	client, serverConn := newTCPPipe(t)
	header, _, block1 := fullHeaderFixture(t)
	dev := &fakeDevice{}
	sess := &Session{conn: serverConn, device: dev, logger: testLogger()}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	_, err := client.Write(header)
	require.NoError(t, err)

	reply := make([]byte, frame.ReplySize)
	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x02), reply[0], "header ack must not carry the error bit")
	assert.Equal(t, byte(frame.KindFull), reply[2])

	dataFrame, err := frame.PackData(1, block1)
	require.NoError(t, err)
	_, err = client.Write(dataFrame)
	require.NoError(t, err)

	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x02), reply[0])
	assert.Equal(t, byte(frame.KindDataAck), reply[2])

	require.NoError(t, client.CloseWrite())

	okBuf := make([]byte, 2)
	require.NoError(t, readFull(client, okBuf))
	assert.Equal(t, "OK", string(okBuf))

	require.NoError(t, <-errCh)
	assert.Equal(t, 2, dev.callCount(), "one USB command for the header, one for the single data frame")
}

func TestSessionHeaderChecksumMismatchClosesWithoutUsbCall(t *testing.T) {
	client, serverConn := newTCPPipe(t)
	header, _, _ := fullHeaderFixture(t)
	header[len(header)-1] ^= 0xFF

	dev := &fakeDevice{}
	sess := &Session{conn: serverConn, device: dev, logger: testLogger()}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	_, err := client.Write(header)
	require.NoError(t, err)

	reply := make([]byte, frame.ReplySize)
	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x10), reply[0], "checksum rejection must carry the error bit")
	assert.Equal(t, byte(frame.KindFull), reply[2])

	err = <-errCh
	require.Error(t, err)
	var fe *frame.FramingError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, dev.callCount(), "a bad header must never reach the device")
}

func TestSessionMinHeaderAcksBeforeDeviceCall(t *testing.T) {
	client, serverConn := newTCPPipe(t)
	meta := waveform.Metadata{SoundIndex: 0, SoundFileSizeInSamples: frame.DataBlockSize / 4, SampleRate: 96000, DataType: 0}
	header, err := frame.PackHeader(frame.KindMin, meta.Bytes(), nil, nil)
	require.NoError(t, err)

	dev := &fakeDevice{}
	sess := &Session{conn: serverConn, device: dev, logger: testLogger()}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	_, err = client.Write(header)
	require.NoError(t, err)

	reply := make([]byte, frame.ReplySize)
	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x02), reply[0])
	assert.Equal(t, byte(frame.KindMin), reply[2])
	assert.Equal(t, 0, dev.callCount(), "MIN headers ack before the first block is even known")

	block0 := make([]byte, frame.DataBlockSize)
	dataFrame, err := frame.PackData(0, block0)
	require.NoError(t, err)
	_, err = client.Write(dataFrame)
	require.NoError(t, err)

	// Second reply: the header ack proper, sent once the device has taken
	// the 0x80 command carrying the first block.
	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x02), reply[0])
	assert.Equal(t, byte(frame.KindMin), reply[2])

	require.NoError(t, client.CloseWrite())
	okBuf := make([]byte, 2)
	require.NoError(t, readFull(client, okBuf))
	assert.Equal(t, "OK", string(okBuf))

	require.NoError(t, <-errCh)
	assert.Equal(t, 1, dev.callCount(), "the first block rides inside the single 0x80 command, not a separate 0x81")
}

func TestSessionUsbFatalErrorAbandonsSessionButNotCaller(t *testing.T) {
	client, serverConn := newTCPPipe(t)
	header, _, _ := fullHeaderFixture(t)

	dev := &fakeDevice{failAt: map[int]error{0: &usbdevice.UsbFatalError{Reason: "nonce mismatch"}}}
	sess := &Session{conn: serverConn, device: dev, logger: testLogger()}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	_, err := client.Write(header)
	require.NoError(t, err)

	err = <-errCh
	require.Error(t, err)
	var fatal *usbdevice.UsbFatalError
	assert.True(t, errors.As(err, &fatal))
	assert.Equal(t, 1, dev.callCount())
}

func TestSessionDataChecksumMismatchContinuesSession(t *testing.T) {
	client, serverConn := newTCPPipe(t)
	header, _, block1 := fullHeaderFixture(t)
	dev := &fakeDevice{}
	sess := &Session{conn: serverConn, device: dev, logger: testLogger()}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	_, err := client.Write(header)
	require.NoError(t, err)
	reply := make([]byte, frame.ReplySize)
	require.NoError(t, readFull(client, reply))

	badFrame, err := frame.PackData(1, block1)
	require.NoError(t, err)
	badFrame[len(badFrame)-1] ^= 0xFF
	_, err = client.Write(badFrame)
	require.NoError(t, err)

	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x10), reply[0], "bad data frame gets an error reply, not a session close")
	assert.Equal(t, byte(frame.KindDataAck), reply[2])

	goodFrame, err := frame.PackData(1, block1)
	require.NoError(t, err)
	_, err = client.Write(goodFrame)
	require.NoError(t, err)
	require.NoError(t, readFull(client, reply))
	assert.Equal(t, byte(0x02), reply[0])

	require.NoError(t, client.CloseWrite())
	okBuf := make([]byte, 2)
	require.NoError(t, readFull(client, okBuf))
	assert.Equal(t, "OK", string(okBuf))

	require.NoError(t, <-errCh)
	assert.Equal(t, 2, dev.callCount(), "the rejected frame never reached the device, only the retried one")
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
