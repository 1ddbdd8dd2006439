package frame

// PackHeader builds a HEADER frame of the given kind.
//
// metadata is always the 16-byte metadata record. fileMetadata must be
// nil for KindMin and exactly FileMetadataSize bytes otherwise (shorter
// slices are a caller error, not silently padded, since the file-metadata
// block is always built at its full fixed size by package waveform).
// firstBlock is only consulted for KindFull; it is zero-padded up to
// DataBlockSize if shorter, and it is an error for it to be longer.
func PackHeader(kind Kind, metadata [MetadataSize]byte, fileMetadata []byte, firstBlock []byte) ([]byte, error) {
	switch kind {
	case KindFull, KindNoData, KindMin:
	default:
		return nil, &FramingError{Kind: kind, Reason: "not a header kind"}
	}

	if kind.WithFileMetadata() && len(fileMetadata) != FileMetadataSize {
		return nil, &FramingError{Kind: kind, Reason: "file metadata must be exactly FileMetadataSize bytes"}
	}
	if len(firstBlock) > DataBlockSize {
		return nil, &FramingError{Kind: kind, Reason: "first block exceeds DataBlockSize"}
	}

	buf := make([]byte, kind.HeaderSize())
	preLen := kind.PreambleLen()
	switch kind {
	case KindFull:
		copy(buf, fullPreamble[:])
	case KindNoData:
		copy(buf, noDataPreamble[:])
	case KindMin:
		copy(buf, minPreamble[:])
	}

	off := preLen
	copy(buf[off:off+MetadataSize], metadata[:])
	off += MetadataSize

	if kind.WithData() {
		copy(buf[off:off+len(firstBlock)], firstBlock)
		off += DataBlockSize
	}
	if kind.WithFileMetadata() {
		copy(buf[off:off+FileMetadataSize], fileMetadata)
		off += FileMetadataSize
	}

	buf[len(buf)-1] = Checksum(buf[:len(buf)-1])
	return buf, nil
}

// HeaderKind inspects the already-read preamble bytes (the first
// PreambleLong bytes of any header frame; MIN headers are short enough
// that reading PreambleLong bytes reads two bytes of metadata ahead,
// which is fine since those bytes are re-read as part of the metadata
// region once the kind is known) and returns the frame kind, or an error
// if neither a FULL/NO_DATA type tag nor a MIN marker is present.
func HeaderKind(preamble []byte) (Kind, error) {
	if len(preamble) < PreambleLong {
		return 0, &FramingError{Reason: "preamble shorter than PreambleLong"}
	}
	switch preamble[4] {
	case byte(KindFull):
		return KindFull, nil
	case byte(KindNoData):
		return KindNoData, nil
	}
	if preamble[2] == byte(KindMin) {
		return KindMin, nil
	}
	return 0, &FramingError{Reason: "unrecognised header preamble"}
}

// ParseHeaderMetadata extracts the 16-byte metadata record from a
// complete, already-read header frame of the given kind.
func ParseHeaderMetadata(kind Kind, raw []byte) (metadata [MetadataSize]byte, err error) {
	if len(raw) != kind.HeaderSize() {
		return metadata, &FramingError{Kind: kind, Reason: "unexpected frame length"}
	}
	off := kind.PreambleLen()
	copy(metadata[:], raw[off:off+MetadataSize])
	return metadata, nil
}

// ParseHeaderFirstBlock extracts the embedded first data block from a
// FULL header frame. It returns nil for any other kind.
func ParseHeaderFirstBlock(kind Kind, raw []byte) []byte {
	if !kind.WithData() {
		return nil
	}
	off := kind.PreambleLen() + MetadataSize
	return raw[off : off+DataBlockSize]
}

// ParseHeaderFileMetadata extracts the 2048-byte file-metadata block from
// a FULL or NO_DATA header frame. It returns nil for KindMin.
func ParseHeaderFileMetadata(kind Kind, raw []byte) []byte {
	if !kind.WithFileMetadata() {
		return nil
	}
	off := kind.PreambleLen() + MetadataSize
	if kind.WithData() {
		off += DataBlockSize
	}
	return raw[off : off+FileMetadataSize]
}
