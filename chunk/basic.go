package chunk

import "github.com/wippyai/dlltab/errors"

// Null is a run of zero bytes: table terminators and module-handle cells.
type Null struct {
	label string
	size  uint32
	align uint32
}

// NewNull creates a zero-filled chunk.
func NewNull(label string, size, align uint32) *Null {
	return &Null{label: label, size: size, align: align}
}

func (n *Null) Name() string                                 { return n.label }
func (n *Null) Size() uint32                                 { return n.size }
func (n *Null) Align() uint32                                { return n.align }
func (n *Null) WriteTo(buf []byte, _ uint32, _ *Arena) error { return nil }

// String is a NUL-terminated string.
type String struct {
	label string
	s     string
}

// NewString creates a NUL-terminated string chunk.
func NewString(label, s string) *String {
	return &String{label: label, s: s}
}

func (c *String) Name() string  { return c.label }
func (c *String) Size() uint32  { return uint32(len(c.s)) + 1 }
func (c *String) Align() uint32 { return 1 }

// Value returns the string without its terminator.
func (c *String) Value() string { return c.s }

func (c *String) WriteTo(buf []byte, _ uint32, _ *Arena) error {
	copy(buf, c.s)
	return nil
}

// Blob is a chunk with fixed contents, such as precomputed unwind codes.
type Blob struct {
	label string
	data  []byte
	align uint32
}

// NewBlob creates a chunk that writes data verbatim.
func NewBlob(label string, data []byte, align uint32) *Blob {
	return &Blob{label: label, data: data, align: align}
}

func (b *Blob) Name() string  { return b.label }
func (b *Blob) Size() uint32  { return uint32(len(b.data)) }
func (b *Blob) Align() uint32 { return b.align }

func (b *Blob) WriteTo(buf []byte, _ uint32, _ *Arena) error {
	copy(buf, b.data)
	return nil
}

// Symbol is a Defined located at an offset inside a chunk.
type Symbol struct {
	Arena  *Arena
	Label  string
	Ref    Ref
	Offset uint32
}

// Name implements dlltab.Defined.
func (s Symbol) Name() string { return s.Label }

// RVA implements dlltab.Defined.
func (s Symbol) RVA() (uint32, error) {
	if s.Arena == nil {
		return 0, errors.Configuration(errors.PhaseLayout, "symbol "+s.Label+" has no arena")
	}
	rva, err := s.Arena.RVA(s.Ref)
	if err != nil {
		return 0, err
	}
	return rva + s.Offset, nil
}
