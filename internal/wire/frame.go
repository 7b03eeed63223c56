package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame size limits. Every frame must carry at least one payload byte (the
// query type) and no more than the configured buffer size.
var (
	ErrFrameEmpty    = fmt.Errorf("wire: empty frame")
	ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds buffer size")
)

// ReadFrame reads one length-framed payload from r. The length is a
// little-endian uint16; the value 0xFFFF escapes to a uint32 length.
// Payloads of zero bytes or more than max bytes are rejected without
// consuming the payload.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var short [2]byte
	if _, err := io.ReadFull(r, short[:]); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(short[:]))
	if size == extendedMarker {
		var long [4]byte
		if _, err := io.ReadFull(r, long[:]); err != nil {
			return nil, err
		}
		size = int(binary.LittleEndian.Uint32(long[:]))
	}
	if size == 0 {
		return nil, ErrFrameEmpty
	}
	if size > max {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w with the length framing ReadFrame expects.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrFrameEmpty
	}
	var header [6]byte
	n := 2
	if len(payload) < extendedMarker {
		binary.LittleEndian.PutUint16(header[:], uint16(len(payload)))
	} else {
		binary.LittleEndian.PutUint16(header[:], extendedMarker)
		binary.LittleEndian.PutUint32(header[2:], uint32(len(payload)))
		n = 6
	}
	if _, err := w.Write(header[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
