package usbdevice

import "encoding/binary"

// Opcode identifies a Harp sound card USB command.
type Opcode byte

// Opcodes the device understands.
const (
	OpMetadata Opcode = 0x80
	OpData     Opcode = 0x81
	OpReset    Opcode = 0x88
)

// Fixed USB command/reply region sizes, in bytes.
const (
	cmdPreambleSize = 4 // 'c','m','d',<opcode>
	nonceSize       = 4
	errorSize       = 4
	endMarkerSize   = 1
	replySize       = cmdPreambleSize + nonceSize + errorSize // 12

	metadataPayloadSize = 16
	dataBlockSize       = 32768
	fileMetadataSize    = 2048
	dataIndexSize       = 4

	metadataCmdSize = cmdPreambleSize + nonceSize + metadataPayloadSize + dataBlockSize + fileMetadataSize + endMarkerSize // 34841
	dataCmdSize     = cmdPreambleSize + nonceSize + dataIndexSize + dataBlockSize + endMarkerSize                         // 32781
	resetCmdSize    = cmdPreambleSize + endMarkerSize                                                                     // 5
)

// buildCmdPrefix writes the fixed 'c','m','d',<opcode> literal followed by
// the reserved nonce slot (left zeroed; SendCmd fills it in) into buf.
func buildCmdPrefix(buf []byte, op Opcode) {
	buf[0] = 'c'
	buf[1] = 'm'
	buf[2] = 'd'
	buf[3] = byte(op)
}

// BuildMetadataPayload builds the 0x80 "metadata (header)" USB command
// payload: cmd-prefix + nonce slot + 16-byte metadata + 32768-byte first
// block (zero-padded if shorter) + 2048-byte file-metadata block + 'f'.
// The nonce slot is left zeroed; SendCmd fills it in before writing.
func BuildMetadataPayload(metadata [metadataPayloadSize]byte, firstBlock []byte, fileMetadata []byte) []byte {
	buf := make([]byte, metadataCmdSize)
	buildCmdPrefix(buf, OpMetadata)

	off := cmdPreambleSize + nonceSize
	copy(buf[off:off+metadataPayloadSize], metadata[:])
	off += metadataPayloadSize

	copy(buf[off:off+len(firstBlock)], firstBlock)
	off += dataBlockSize

	copy(buf[off:off+len(fileMetadata)], fileMetadata)
	off += fileMetadataSize

	buf[len(buf)-1] = 'f'
	return buf
}

// BuildDataPayload builds the 0x81 "data block" USB command payload:
// cmd-prefix + nonce slot + 4-byte index + 32768-byte block (zero-padded
// if shorter) + 'f'.
func BuildDataPayload(index int32, block []byte) []byte {
	buf := make([]byte, dataCmdSize)
	buildCmdPrefix(buf, OpData)

	off := cmdPreambleSize + nonceSize
	binary.LittleEndian.PutUint32(buf[off:off+dataIndexSize], uint32(index))
	off += dataIndexSize

	copy(buf[off:off+len(block)], block)

	buf[len(buf)-1] = 'f'
	return buf
}

// buildResetPayload builds the 0x88 "reset" USB command payload: just the
// cmd-prefix followed by 'f', with no nonce and no reply expected.
func buildResetPayload() []byte {
	buf := make([]byte, resetCmdSize)
	buildCmdPrefix(buf, OpReset)
	buf[len(buf)-1] = 'f'
	return buf
}
