package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader reads little-endian PE structures from a byte slice with position tracking.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Seek moves to an absolute position.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.wrapError(fmt.Errorf("seek to %d outside %d bytes", pos, len(r.data)))
	}
	r.pos = pos
	return nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Word reads a pointer-sized value: 8 bytes when wide, else 4.
func (r *Reader) Word(wide bool) (uint64, error) {
	if wide {
		return r.U64()
	}
	v, err := r.U32()
	return uint64(v), err
}

// CString reads bytes up to and excluding the next NUL.
func (r *Reader) CString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", r.wrapError(errors.New("unterminated string"))
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error while decoding a table with position information.
type ParseError struct {
	Err      error
	Table    string
	Position int
}

func (e *ParseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("pe: %s at position %d: %v", e.Table, e.Position, e.Err)
	}
	return fmt.Sprintf("pe: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(table string, err error) error {
	return &ParseError{
		Position: r.pos,
		Table:    table,
		Err:      err,
	}
}
