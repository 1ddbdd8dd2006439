package frame

// replyOKByte0 and replyErrByte0 are the first byte of a reply frame:
// 0x02 for a normal acknowledgement, 0x10 when with_error is set.
const (
	replyOKByte0  = 0x02
	replyErrByte0 = 0x10
)

// PackReply builds the 12-byte server->client reply frame acknowledging
// the frame kind kindTag, stamped with ts. Setting withError replaces
// byte 0 with the error marker; the kind tag is otherwise unchanged so the
// client can tell which frame is being (negatively) acknowledged.
func PackReply(kindTag Kind, ts Timestamp, withError bool) []byte {
	buf := make([]byte, ReplySize)
	if withError {
		buf[0] = replyErrByte0
	} else {
		buf[0] = replyOKByte0
	}
	buf[1] = 0x0A
	buf[2] = byte(kindTag)
	buf[3] = 0xFF
	buf[4] = 0x10

	tsBytes := ts.Bytes()
	copy(buf[5:5+TimestampSize], tsBytes[:])

	buf[len(buf)-1] = Checksum(buf[:len(buf)-1])
	return buf
}

// ParseReply decodes a 12-byte reply frame.
func ParseReply(raw []byte) (kindTag Kind, ts Timestamp, isError bool, err error) {
	if len(raw) != ReplySize {
		return 0, Timestamp{}, false, &FramingError{Reason: "unexpected reply frame length"}
	}
	isError = raw[0] == replyErrByte0
	kindTag = Kind(raw[2])
	ts, err = ParseTimestamp(raw[5 : 5+TimestampSize])
	return kindTag, ts, isError, err
}
