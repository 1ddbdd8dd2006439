// Command harp-client synthesizes a stereo tone and uploads it to a
// harp-server instance over TCP, driving the HEADER/DATA/EOF frame
// sequence built by package clientsession.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/harp-labs/soundcard-bridge/internal/clientsession"
	"github.com/harp-labs/soundcard-bridge/internal/frame"
	"github.com/harp-labs/soundcard-bridge/internal/soundgen"
	"github.com/harp-labs/soundcard-bridge/internal/waveform"
)

func main() {
	var (
		addr       = pflag.StringP("address", "a", "localhost:9999", "harp-server address to upload to.")
		duration   = pflag.Float64P("duration", "t", 2.0, "Tone duration in seconds.")
		sampleRate = pflag.IntP("sample-rate", "r", 96000, "Sample rate in Hz.")
		freqLeft   = pflag.Float64P("freq-left", "l", 440.0, "Left channel tone frequency in Hz.")
		freqRight  = pflag.Float64P("freq-right", "R", 440.0, "Right channel tone frequency in Hz.")
		soundIndex = pflag.Int32P("sound-index", "i", 0, "Sound index to assign on the device.")
		noData     = pflag.BoolP("no-embed-data", "n", false, "Send a NO_DATA header instead of embedding the first block.")
		minHeader  = pflag.BoolP("min-header", "m", false, "Send a MIN header (no file metadata, no embedded block).")
		filename   = pflag.StringP("sound-filename", "f", "tone.raw", "Sound filename recorded in the file-metadata block.")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "harp-client"})

	cfg := soundgen.Config{
		Left:  soundgen.ChannelWindow{Duration: *duration, ApplyStart: true, ApplyEnd: true, Function: soundgen.WindowHann},
		Right: soundgen.ChannelWindow{Duration: *duration, ApplyStart: true, ApplyEnd: true, Function: soundgen.WindowHann},
	}
	raw := soundgen.Generate(*sampleRate, *duration, *freqLeft, *freqRight, cfg)

	wave, err := waveform.New(raw)
	if err != nil {
		logger.Fatal("unable to build waveform", "err", err)
	}

	builder := clientsession.NewBuilder(wave, *soundIndex, int32(*sampleRate), 0)
	builder.SetSoundFilename(*filename)

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatal("unable to connect", "addr", *addr, "err", err)
	}
	defer conn.Close()

	withData := !*noData && !*minHeader
	withFileMetadata := !*minHeader

	header, err := builder.BuildHeader(withData, withFileMetadata)
	if err != nil {
		logger.Fatal("unable to build header", "err", err)
	}
	start := time.Now()
	if _, err := conn.Write(header); err != nil {
		logger.Fatal("unable to send header", "err", err)
	}
	if err := readReply(conn, logger, "header"); err != nil {
		logger.Fatal("header rejected", "err", err)
	}

	if !withData {
		// Block 0 isn't embedded in a NO_DATA/MIN header, so it travels as
		// DATA frame index 0 instead, once the server's first reply arrives.
		// Builder only builds indices [1, TotalPackets()), so index 0 is
		// built directly here.
		first := buildZeroIndexBlock(wave)
		if _, err := conn.Write(first); err != nil {
			logger.Fatal("unable to send first data block", "err", err)
		}
		// The header ack proper arrives only once the device has taken the
		// metadata command carrying this first block.
		if err := readReply(conn, logger, "header-ack"); err != nil {
			logger.Fatal("first data block rejected", "err", err)
		}
	}

	for i := 1; i < builder.TotalPackets(); i++ {
		packet, err := builder.BuildDataPacket(i)
		if err != nil {
			logger.Fatal("unable to build data packet", "index", i, "err", err)
		}
		if _, err := conn.Write(packet); err != nil {
			logger.Fatal("unable to send data packet", "index", i, "err", err)
		}
		if err := readReply(conn, logger, fmt.Sprintf("data[%d]", i)); err != nil {
			logger.Fatal("data packet rejected", "index", i, "err", err)
		}
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}

	ok := make([]byte, 2)
	if _, err := io.ReadFull(conn, ok); err != nil || string(ok) != "OK" {
		logger.Fatal("did not receive final OK", "err", err)
	}

	packets, bytesSent := builder.Stats()
	elapsed := time.Since(start)
	logger.Info("upload complete", "packets", packets, "bytes", bytesSent, "elapsed", elapsed,
		"bandwidth_bytes_per_sec", float64(bytesSent)/elapsed.Seconds())
}

// buildZeroIndexBlock stands in for BuildDataPacket(0), which Builder
// refuses since index 0's bytes normally travel inline in a FULL header;
// a with_data=false upload still needs that block sent as a standalone
// DATA frame with index 0.
func buildZeroIndexBlock(wave waveform.Waveform) []byte {
	packet, _ := frame.PackData(0, wave.Block(0))
	return packet
}

func readReply(conn net.Conn, logger *log.Logger, label string) error {
	buf := make([]byte, frame.ReplySize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	kindTag, ts, isError, err := frame.ParseReply(buf)
	if err != nil {
		return err
	}
	if isError {
		return fmt.Errorf("%s: server replied with error (kind %s)", label, kindTag)
	}
	logger.Debug("ack received", "label", label, "kind", kindTag, "device_timestamp", ts.Float())
	return nil
}
