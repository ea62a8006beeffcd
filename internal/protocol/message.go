package protocol

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// messageWordSize is the alignment unit of every frame. Bodies are padded to
// a multiple of this size and strings are null-terminated within it, mirroring
// the wire convention this codec's header/body split is modeled on.
const messageWordSize = 8

// messageHeaderSize is the fixed header every frame carries ahead of its body:
// words (uint32, body length in word-units), mtype (uint8), schema (uint8),
// extra (uint16, reserved for flags).
const messageHeaderSize = 8

// body is the growable, word-aligned byte buffer a Message writes into.
type body struct {
	Bytes  []byte
	Offset int
}

// Message is a single request or response frame: an 8-byte header followed
// by a word-aligned body. Callers build it with the put* encoders, seal it
// with putHeader, and either hand Body() off to a transport or Rewind() it
// to read it back with the get* decoders.
type Message struct {
	raw    []byte
	header []byte
	body   body
}

// Init allocates a frame with the given body capacity (rounded up to a whole
// number of words) and resets it for writing.
func (m *Message) Init(size int) {
	if size%messageWordSize != 0 {
		size += messageWordSize - size%messageWordSize
	}

	// Over-allocate so we can slice to a word-aligned start regardless of
	// where the Go allocator placed the backing array.
	m.raw = make([]byte, messageHeaderSize+size+messageWordSize)

	base := uintptr(unsafe.Pointer(&m.raw[0]))
	pad := 0
	if rem := base % messageWordSize; rem != 0 {
		pad = int(messageWordSize - rem)
	}

	m.header = m.raw[pad : pad+messageHeaderSize]
	m.body.Bytes = m.raw[pad+messageHeaderSize : pad+messageHeaderSize+size]
	m.body.Offset = 0
}

// reset rewinds the write cursor to the start of the body without
// reallocating, ready for the next frame.
func (m *Message) reset() {
	m.body.Offset = 0
}

// Rewind moves the read cursor back to the start of the body. Call it once
// after putHeader and before the first get* call.
func (m *Message) Rewind() {
	m.body.Offset = 0
}

// Body returns the body bytes written so far and the current write/read
// offset.
func (m *Message) Body() ([]byte, int) {
	return m.body.Bytes, m.body.Offset
}

// FrameBytes returns the header followed by exactly the written body bytes
// (up to the current write offset), ready to hand to a transport.
func (m *Message) FrameBytes() []byte {
	out := make([]byte, len(m.header)+m.body.Offset)
	copy(out, m.header)
	copy(out[len(m.header):], m.body.Bytes[:m.body.Offset])
	return out
}

// DecodeFrame builds a Message for reading from bytes received off the
// wire: the first messageHeaderSize bytes are the header, the rest is the
// body.
func DecodeFrame(frame []byte) (*Message, error) {
	if len(frame) < messageHeaderSize {
		return nil, fmt.Errorf("protocol: frame too short (%d bytes)", len(frame))
	}
	m := &Message{}
	m.Init(len(frame) - messageHeaderSize)
	m.SetHeaderBytes(frame[:messageHeaderSize])
	copy(m.body.Bytes, frame[messageHeaderSize:])
	return m, nil
}

func (m *Message) grow(n int) {
	need := m.body.Offset + n
	if need <= len(m.body.Bytes) {
		return
	}
	grown := make([]byte, need*2)
	copy(grown, m.body.Bytes)
	m.body.Bytes = grown
}

func (m *Message) pad() {
	if rem := m.body.Offset % messageWordSize; rem != 0 {
		n := messageWordSize - rem
		m.grow(n)
		for i := 0; i < n; i++ {
			m.body.Bytes[m.body.Offset] = 0
			m.body.Offset++
		}
	}
}

func (m *Message) putUint8(v uint8) {
	m.grow(1)
	m.body.Bytes[m.body.Offset] = v
	m.body.Offset++
}

func (m *Message) putUint16(v uint16) {
	m.grow(2)
	binary.LittleEndian.PutUint16(m.body.Bytes[m.body.Offset:], v)
	m.body.Offset += 2
}

func (m *Message) putUint32(v uint32) {
	m.grow(4)
	binary.LittleEndian.PutUint32(m.body.Bytes[m.body.Offset:], v)
	m.body.Offset += 4
}

func (m *Message) putUint64(v uint64) {
	m.grow(8)
	binary.LittleEndian.PutUint64(m.body.Bytes[m.body.Offset:], v)
	m.body.Offset += 8
}

func (m *Message) putInt64(v int64) {
	m.putUint64(uint64(v))
}

func (m *Message) putFloat64Bits(bits uint64) {
	m.putUint64(bits)
}

func (m *Message) putBlob(b []byte) {
	m.putUint64(uint64(len(b)))
	m.grow(len(b))
	copy(m.body.Bytes[m.body.Offset:], b)
	m.body.Offset += len(b)
	m.pad()
}

// putString writes a null-terminated, word-padded string with no explicit
// length prefix: the reader scans for the terminator a word at a time.
func (m *Message) putString(s string) {
	m.grow(len(s))
	copy(m.body.Bytes[m.body.Offset:], s)
	m.body.Offset += len(s)
	// Always leave room for at least one null byte, even on a word boundary.
	if m.body.Offset%messageWordSize == 0 {
		m.grow(messageWordSize)
		for i := 0; i < messageWordSize; i++ {
			m.body.Bytes[m.body.Offset] = 0
			m.body.Offset++
		}
		return
	}
	m.pad()
}

// putHeader seals the frame: mtype identifies the request/response
// discriminant, schema is the wire schema version.
func (m *Message) putHeader(mtype uint8, schema uint8) {
	words := uint32(m.body.Offset / messageWordSize)
	binary.LittleEndian.PutUint32(m.header[0:4], words)
	m.header[4] = mtype
	m.header[5] = schema
	binary.LittleEndian.PutUint16(m.header[6:8], 0)
}

// Header returns the decoded header fields of a received frame.
func (m *Message) Header() (words uint32, mtype uint8, schema uint8) {
	words = binary.LittleEndian.Uint32(m.header[0:4])
	mtype = m.header[4]
	schema = m.header[5]
	return
}

// HeaderBytes exposes the raw header bytes for transport framing.
func (m *Message) HeaderBytes() []byte {
	return m.header
}

// SetHeaderBytes overwrites the header from bytes read off the wire.
func (m *Message) SetHeaderBytes(b []byte) {
	copy(m.header, b)
}

func (m *Message) getUint8() uint8 {
	v := m.body.Bytes[m.body.Offset]
	m.body.Offset++
	return v
}

func (m *Message) getUint16() uint16 {
	v := binary.LittleEndian.Uint16(m.body.Bytes[m.body.Offset:])
	m.body.Offset += 2
	return v
}

func (m *Message) getUint32() uint32 {
	v := binary.LittleEndian.Uint32(m.body.Bytes[m.body.Offset:])
	m.body.Offset += 4
	return v
}

func (m *Message) getUint64() uint64 {
	v := binary.LittleEndian.Uint64(m.body.Bytes[m.body.Offset:])
	m.body.Offset += 8
	return v
}

func (m *Message) getInt64() int64 {
	return int64(m.getUint64())
}

func (m *Message) getBlob() []byte {
	n := int(m.getUint64())
	b := make([]byte, n)
	copy(b, m.body.Bytes[m.body.Offset:m.body.Offset+n])
	m.body.Offset += n
	if rem := m.body.Offset % messageWordSize; rem != 0 {
		m.body.Offset += messageWordSize - rem
	}
	return b
}

// getString scans forward a word at a time from the current offset looking
// for a null terminator, matching the encoding putString produces.
func (m *Message) getString() string {
	start := m.body.Offset
	for {
		word := m.body.Bytes[m.body.Offset : m.body.Offset+messageWordSize]
		m.body.Offset += messageWordSize
		if i := indexByte(word, 0); i >= 0 {
			end := m.body.Offset - messageWordSize + i
			return string(m.body.Bytes[start:end])
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// ensureGrown makes room for n more bytes past the write cursor, with the
// same contract as grow. No encoder in this package calls it.
func (m *Message) ensureGrown(n int) {
	m.grow(n)
}
