// Package wire implements the little-endian binary buffers and length
// framing used on the query manager socket.
//
// Both buffer types tolerate out-of-range access without panicking: reads
// past the end return zero values, writes past the end are dropped, and in
// both cases the position still advances so Overflowed() reports the
// condition after the fact. Callers check once at the end of a message
// instead of after every field.
package wire

import "encoding/binary"

// extendedMarker in a 16-bit length field means a 32-bit length follows.
const extendedMarker = 0xFFFF

// ReadBuffer decodes little-endian fields from a fixed byte slice.
type ReadBuffer struct {
	Data     []byte
	Position int
}

// NewReadBuffer returns a ReadBuffer over data, positioned at the start.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{Data: data}
}

// Size returns the total buffer size in bytes.
func (b *ReadBuffer) Size() int {
	return len(b.Data)
}

// Remaining returns the number of unread bytes, or zero if overflowed.
func (b *ReadBuffer) Remaining() int {
	if b.Position >= len(b.Data) {
		return 0
	}
	return len(b.Data) - b.Position
}

// CanRead reports whether n more bytes fit before the end of the buffer.
func (b *ReadBuffer) CanRead(n int) bool {
	return n >= 0 && b.Position+n <= len(b.Data)
}

// Overflowed reports whether any read ran past the end of the buffer.
func (b *ReadBuffer) Overflowed() bool {
	return b.Position > len(b.Data)
}

// Read8 reads one byte.
func (b *ReadBuffer) Read8() uint8 {
	var v uint8
	if b.CanRead(1) {
		v = b.Data[b.Position]
	}
	b.Position++
	return v
}

// Read16 reads a little-endian uint16.
func (b *ReadBuffer) Read16() uint16 {
	var v uint16
	if b.CanRead(2) {
		v = binary.LittleEndian.Uint16(b.Data[b.Position:])
	}
	b.Position += 2
	return v
}

// Read32 reads a little-endian uint32.
func (b *ReadBuffer) Read32() uint32 {
	var v uint32
	if b.CanRead(4) {
		v = binary.LittleEndian.Uint32(b.Data[b.Position:])
	}
	b.Position += 4
	return v
}

// ReadFlag reads one byte and interprets any nonzero value as true.
func (b *ReadBuffer) ReadFlag() bool {
	return b.Read8() != 0
}

// ReadString reads a length-prefixed string. The length is a uint16, with
// 0xFFFF escaping to a uint32 length. The position advances by the full
// encoded length even when the bytes are not actually available, leaving
// the buffer overflowed.
func (b *ReadBuffer) ReadString() string {
	length := int(b.Read16())
	if length == extendedMarker {
		length = int(b.Read32())
	}
	var s string
	if b.CanRead(length) {
		s = string(b.Data[b.Position : b.Position+length])
	}
	b.Position += length
	return s
}

// WriteBuffer encodes little-endian fields into a fixed-size byte slice.
type WriteBuffer struct {
	Data     []byte
	Position int
}

// NewWriteBuffer returns an empty WriteBuffer with the given capacity.
func NewWriteBuffer(size int) *WriteBuffer {
	return &WriteBuffer{Data: make([]byte, size)}
}

// Reset rewinds the buffer to the start for reuse.
func (b *WriteBuffer) Reset() {
	b.Position = 0
}

// Size returns the total buffer capacity in bytes.
func (b *WriteBuffer) Size() int {
	return len(b.Data)
}

// CanWrite reports whether n more bytes fit before the end of the buffer.
func (b *WriteBuffer) CanWrite(n int) bool {
	return n >= 0 && b.Position+n <= len(b.Data)
}

// Overflowed reports whether any write ran past the end of the buffer.
func (b *WriteBuffer) Overflowed() bool {
	return b.Position > len(b.Data)
}

// Bytes returns the written portion of the buffer, or nil if overflowed.
func (b *WriteBuffer) Bytes() []byte {
	if b.Overflowed() {
		return nil
	}
	return b.Data[:b.Position]
}

// Write8 writes one byte.
func (b *WriteBuffer) Write8(v uint8) {
	if b.CanWrite(1) {
		b.Data[b.Position] = v
	}
	b.Position++
}

// Write16 writes a little-endian uint16.
func (b *WriteBuffer) Write16(v uint16) {
	if b.CanWrite(2) {
		binary.LittleEndian.PutUint16(b.Data[b.Position:], v)
	}
	b.Position += 2
}

// Write32 writes a little-endian uint32.
func (b *WriteBuffer) Write32(v uint32) {
	if b.CanWrite(4) {
		binary.LittleEndian.PutUint32(b.Data[b.Position:], v)
	}
	b.Position += 4
}

// Write32BE writes a big-endian uint32. Used for IPv4 addresses, which go
// out in network byte order.
func (b *WriteBuffer) Write32BE(v uint32) {
	if b.CanWrite(4) {
		binary.BigEndian.PutUint32(b.Data[b.Position:], v)
	}
	b.Position += 4
}

// WriteFlag writes a boolean as one byte.
func (b *WriteBuffer) WriteFlag(v bool) {
	if v {
		b.Write8(1)
	} else {
		b.Write8(0)
	}
}

// WriteBytes writes raw bytes without a length prefix.
func (b *WriteBuffer) WriteBytes(p []byte) {
	if b.CanWrite(len(p)) {
		copy(b.Data[b.Position:], p)
	}
	b.Position += len(p)
}

// WriteString writes a length-prefixed string. Lengths below 0xFFFF use a
// uint16 prefix; longer strings escape with 0xFFFF followed by a uint32.
func (b *WriteBuffer) WriteString(s string) {
	if len(s) < extendedMarker {
		b.Write16(uint16(len(s)))
	} else {
		b.Write16(extendedMarker)
		b.Write32(uint32(len(s)))
	}
	b.WriteBytes([]byte(s))
}

// Rewrite16 overwrites a previously written uint16 at pos. The rewrite is
// dropped when pos+2 exceeds the current position or the buffer has
// overflowed.
func (b *WriteBuffer) Rewrite16(pos int, v uint16) {
	if pos >= 0 && pos+2 <= b.Position && !b.Overflowed() {
		binary.LittleEndian.PutUint16(b.Data[pos:], v)
	}
}

// Insert32 inserts a uint32 at pos, shifting the bytes after it right by
// four. The position advances by four even when the shift does not fit, so
// the overflow is still detectable.
func (b *WriteBuffer) Insert32(pos int, v uint32) {
	if pos < 0 || pos > b.Position {
		b.Position += 4
		return
	}
	if b.CanWrite(4) {
		copy(b.Data[pos+4:b.Position+4], b.Data[pos:b.Position])
		binary.LittleEndian.PutUint32(b.Data[pos:], v)
	}
	b.Position += 4
}
