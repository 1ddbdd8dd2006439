// Command harp-server binds the Harp sound card upload port and bridges
// accepted TCP sessions onto the USB-attached device.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/harp-labs/soundcard-bridge/internal/server"
	"github.com/harp-labs/soundcard-bridge/internal/usbdevice"
)

func main() {
	var (
		addr         = pflag.StringP("address", "a", "localhost:9999", "TCP address to bind for upload sessions.")
		vid          = pflag.Uint16P("vid", "v", 0x04D8, "USB vendor ID of the Harp sound card.")
		pid          = pflag.Uint16P("pid", "p", 0xEE6A, "USB product ID of the Harp sound card.")
		configValue  = pflag.IntP("config-value", "c", 1, "USB configuration value to select on the device.")
		logLevel     = pflag.StringP("log-level", "L", "info", "Log level: debug, info, warn, error.")
		resetOnStart = pflag.Bool("reset-on-start", false, "Issue a device reset before accepting any connections.")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "harp-server"})
	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unrecognised log level, defaulting to info", "value", *logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := usbdevice.Open(usbdevice.Config{VID: *vid, PID: *pid, ConfigValue: *configValue})
	if err != nil {
		logger.Fatal("unable to open Harp sound card", "err", err)
	}
	defer dev.Close()

	if *resetOnStart {
		logger.Info("resetting device before accepting connections")
		if err := dev.Reset(ctx); err != nil {
			logger.Fatal("device reset failed", "err", err)
		}
	}

	ln := server.NewListener(*addr, dev, logger)
	if err := ln.Serve(ctx); err != nil {
		logger.Fatal("server stopped", "err", err)
	}
	logger.Info("shutdown complete")
}
