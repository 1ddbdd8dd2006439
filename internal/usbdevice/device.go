// Package usbdevice drives the Harp sound card over USB bulk transfer: one
// command/reply round trip per SendCmd call, with nonce correlation and
// reconnect-with-backoff on I/O failure.
package usbdevice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/log"
	"github.com/google/gousb"
)

// Config describes which USB device to open and how.
type Config struct {
	VID, PID      uint16
	ConfigValue   int
	ReconnectWait time.Duration // interval between reconnect attempts; zero uses 1s
}

// outEndpoint and inEndpoint narrow gousb's endpoint types down to what
// Device needs, so tests can substitute fakes instead of real USB hardware.
type outEndpoint interface {
	write(p []byte, timeout time.Duration) (int, error)
}

type inEndpoint interface {
	read(p []byte, timeout time.Duration) (int, error)
}

type gousbOut struct{ ep *gousb.OutEndpoint }

func (g *gousbOut) write(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.ep.WriteContext(ctx, p)
}

type gousbIn struct{ ep *gousb.InEndpoint }

func (g *gousbIn) read(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.ep.ReadContext(ctx, p)
}

// opener knows how to establish (or re-establish) the USB connection.
// The real implementation talks to gousb; tests substitute a fake.
type opener interface {
	open() (outEndpoint, inEndpoint, closer, error)
}

type closer func()

type gousbOpener struct {
	vid, pid    uint16
	configValue int
}

func (o *gousbOpener) open() (outEndpoint, inEndpoint, closer, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(o.vid), gousb.ID(o.pid))
	if err != nil {
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, nil, nil, ErrNotFound
	}
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: set auto detach: %w", err)
	}
	cfg, err := dev.Config(o.configValue)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: select config %d: %w", o.configValue, err)
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: claim interface: %w", err)
	}
	outEp, err := iface.OutEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: out endpoint: %w", err)
	}
	inEp, err := iface.InEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, nil, nil, fmt.Errorf("usbdevice: in endpoint: %w", err)
	}

	closeAll := func() {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
	}
	return &gousbOut{outEp}, &gousbIn{inEp}, closeAll, nil
}

// Device is a single Harp sound card reached over USB bulk transfer. The
// zero value is not usable; construct with Open.
type Device struct {
	mu sync.Mutex

	opener opener
	out    outEndpoint
	in     inEndpoint
	close  closer

	reconnectWait time.Duration
	rng           *rand.Rand
	logger        *log.Logger
}

// Open claims the configured USB device and readies its bulk endpoints.
func Open(cfg Config) (*Device, error) {
	return open(cfg, &gousbOpener{vid: cfg.VID, pid: cfg.PID, configValue: cfg.ConfigValue}, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func open(cfg Config, o opener, rng *rand.Rand) (*Device, error) {
	out, in, cl, err := o.open()
	if err != nil {
		return nil, err
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = time.Second
	}
	return &Device{
		opener:        o,
		out:           out,
		in:            in,
		close:         cl,
		reconnectWait: wait,
		rng:           rng,
		logger:        log.NewWithOptions(os.Stderr, log.Options{Prefix: "usbdevice"}),
	}, nil
}

// Close releases the underlying USB resources.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.close != nil {
		d.close()
	}
	return nil
}

// nextNonce returns a uniform int32 in [-32768, 32768).
func (d *Device) nextNonce() int32 {
	return int32(d.rng.Intn(65536) - 32768)
}

// SendCmd performs one command/reply round trip: it stamps a fresh nonce
// into payload (which must already carry the 'c','m','d',<opcode> prefix
// at offset 0 and a reserved 4-byte nonce slot at offset 4, as built by
// BuildMetadataPayload/BuildDataPayload), writes it, reads the 12-byte
// reply, and verifies the nonce round-trips and no error bit is set.
// timeout bounds the reply read only, not the write.
//
// On a transient I/O failure the device reconnects with unbounded backoff
// and retries the same command exactly once; a second failure is fatal.
func (d *Device) SendCmd(ctx context.Context, payload []byte, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nonce := d.nextNonce()
	binary.LittleEndian.PutUint32(payload[cmdPreambleSize:cmdPreambleSize+nonceSize], uint32(nonce))

	err := d.attempt(payload, nonce, timeout)
	if err == nil {
		return nil
	}

	var transient *UsbTransientError
	if !errors.As(err, &transient) {
		return err
	}

	d.logger.Warn("usb command failed, reconnecting", "err", err)
	if rerr := d.reconnect(ctx); rerr != nil {
		return &UsbFatalError{Reason: "reconnect failed", Err: rerr}
	}

	if err := d.attempt(payload, nonce, timeout); err != nil {
		return &UsbFatalError{Reason: "command failed after reconnect", Err: err}
	}
	return nil
}

// writeTimeout bounds the outbound bulk transfer itself, distinct from
// the caller-supplied reply read timeout.
const writeTimeout = 100 * time.Millisecond

func (d *Device) attempt(payload []byte, nonce int32, readTimeout time.Duration) error {
	n, err := d.out.write(payload, writeTimeout)
	if err != nil {
		return &UsbTransientError{Op: "write", Err: err}
	}
	if n != len(payload) {
		return &UsbTransientError{Op: "write", Err: fmt.Errorf("wrote %d of %d bytes", n, len(payload))}
	}

	reply := make([]byte, replySize)
	n, err = d.in.read(reply, readTimeout)
	if err != nil {
		return &UsbTransientError{Op: "read", Err: err}
	}
	if n != replySize {
		return &UsbTransientError{Op: "read", Err: fmt.Errorf("read %d of %d reply bytes", n, replySize)}
	}

	gotNonce := int32(binary.LittleEndian.Uint32(reply[cmdPreambleSize : cmdPreambleSize+nonceSize]))
	if gotNonce != nonce {
		return &UsbFatalError{Reason: fmt.Sprintf("nonce mismatch: sent %d, got %d", nonce, gotNonce)}
	}
	if errVal := binary.LittleEndian.Uint32(reply[cmdPreambleSize+nonceSize:]); errVal != 0 {
		return &UsbFatalError{Reason: fmt.Sprintf("device reported error %d", errVal)}
	}
	return nil
}

// reconnect re-opens the USB connection, retrying forever at a fixed
// interval until it succeeds or ctx is cancelled.
func (d *Device) reconnect(ctx context.Context) error {
	if d.close != nil {
		d.close()
	}

	var out outEndpoint
	var in inEndpoint
	var cl closer

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		out, in, cl, err = d.opener.open()
		return err
	}

	b := backoff.WithContext(&backoff.ConstantBackOff{Interval: d.reconnectWait}, ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}

	d.out, d.in, d.close = out, in, cl
	return nil
}

// Reset issues the 0x88 reset command. No reply is expected; the device
// reboots and re-enumerates on the bus, so Reset sleeps through the
// reboot and then reopens the connection, since the old endpoint handles
// are stale once the device comes back.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload := buildResetPayload()
	n, err := d.out.write(payload, writeTimeout)
	if err != nil {
		return &UsbTransientError{Op: "write reset", Err: err}
	}
	if n != len(payload) {
		return &UsbTransientError{Op: "write reset", Err: fmt.Errorf("wrote %d of %d bytes", n, len(payload))}
	}

	select {
	case <-time.After(700 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.reconnect(ctx)
}
