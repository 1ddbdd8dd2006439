package server

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"

	"github.com/harp-labs/soundcard-bridge/internal/usbdevice"
)

// Listener accepts upload connections on a single address and admits one
// session at a time onto the shared USB device. Competing connections
// queue for the admission permit rather than bumping the session in
// progress.
type Listener struct {
	addr   string
	device device
	logger *log.Logger
	permit chan struct{}
}

// NewListener builds a Listener for addr (e.g. "localhost:9999"), backed
// by device and logging through logger.
func NewListener(addr string, device *usbdevice.Device, logger *log.Logger) *Listener {
	return &Listener{
		addr:   addr,
		device: device,
		logger: logger,
		permit: make(chan struct{}, 1),
	}
}

// Serve binds the listener and runs until ctx is cancelled or Accept
// fails. On cancellation the listener is closed and Serve returns nil;
// sessions already in flight are given the same ctx and unwind on their
// own (Session.Run aborts any blocked read once ctx is done).
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", l.addr, err)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.logger.Info("listening for uploads", "addr", l.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				l.logger.Warn("unable to disable Nagle's algorithm", "err", err)
			}
		}

		select {
		case l.permit <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}

		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer func() { <-l.permit }()
	defer conn.Close()

	l.logger.Info("session admitted", "remote", conn.RemoteAddr())
	sess := NewSession(conn, l.device, l.logger)
	if err := sess.Run(ctx); err != nil {
		l.logger.Warn("session ended with error", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	l.logger.Info("session closed", "remote", conn.RemoteAddr())
}
