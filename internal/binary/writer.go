package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer provides buffered little-endian writing for PE table encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.buf.Write(buf[:])
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.buf.Write(buf[:])
}

// Word writes v as a pointer-sized value: 8 bytes when wide, else 4.
func (w *Writer) Word(v uint64, wide bool) {
	if wide {
		w.U64(v)
		return
	}
	w.U32(uint32(v))
}

// CString writes s followed by a NUL byte.
func (w *Writer) CString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// Zero writes n zero bytes.
func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf.WriteByte(0)
	}
}

// Align pads with zeros until the length is a multiple of align.
func (w *Writer) Align(align int) {
	if align <= 1 {
		return
	}
	if rem := w.buf.Len() % align; rem != 0 {
		w.Zero(align - rem)
	}
}

// CopyTo copies the written bytes into dst and zero-fills the rest of dst.
// It returns the number of written bytes that did not fit.
func (w *Writer) CopyTo(dst []byte) int {
	n := copy(dst, w.buf.Bytes())
	clear(dst[n:])
	return w.buf.Len() - n
}
