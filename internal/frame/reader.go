package frame

import "io"

// ReadHeader reads one complete header frame from r: first the
// PreambleLong-byte preamble (which for a MIN header also reads the first
// two bytes of the metadata region, since a MIN preamble is only
// PreambleShort bytes long), then whatever remainder the detected kind
// declares.
//
// ReadHeader does not verify the checksum; callers run Verify on the
// returned raw bytes so they can choose how to react (a header checksum
// failure is fatal to the session, but the error reply still needs the
// frame's kind tag, which is only available once the frame is read).
func ReadHeader(r io.Reader) (kind Kind, raw []byte, err error) {
	pre := make([]byte, PreambleLong)
	if _, err := io.ReadFull(r, pre); err != nil {
		return 0, nil, err
	}

	kind, kerr := HeaderKind(pre)
	if kerr != nil {
		return 0, pre, kerr
	}

	total := kind.HeaderSize()
	raw = make([]byte, total)
	copy(raw, pre)

	if _, err := io.ReadFull(r, raw[PreambleLong:]); err != nil {
		return kind, nil, err
	}
	return kind, raw, nil
}

// ReadData reads one complete, fixed-length DATA frame from r. It does
// not verify the checksum or the preamble contents; callers do that with
// Verify and VerifyDataPreamble.
func ReadData(r io.Reader) ([]byte, error) {
	buf := make([]byte, DataFrameSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// VerifyDataPreamble reports whether raw begins with the fixed DATA frame
// preamble literal.
func VerifyDataPreamble(raw []byte) bool {
	if len(raw) < PreambleLong {
		return false
	}
	for i, b := range dataPreamble {
		if raw[i] != b {
			return false
		}
	}
	return true
}
