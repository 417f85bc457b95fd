package chunk

import "github.com/wippyai/dlltab/errors"

// DefaultReservedSize is the guaranteed room for a DLL file name, large enough
// for "KERNEL32.dll" as well as an absolute store path.
const DefaultReservedSize = 301

// ReservedString is a string chunk with a fixed output size, so that a later
// patch step can rewrite the name in place without moving anything.
type ReservedString struct {
	label string
	s     string
	size  uint32
}

// NewReservedString creates a reserved-size string. A string longer than size
// is a configuration error.
func NewReservedString(label, s string, size uint32) (*ReservedString, error) {
	if uint64(len(s)) > uint64(size) {
		return nil, errors.New(errors.PhaseFixPath, errors.KindConfiguration).
			DLL(s).
			Value(len(s)).
			Detail("name of %d bytes exceeds reserved size %d", len(s), size).
			Build()
	}
	return &ReservedString{label: label, s: s, size: size}, nil
}

func (r *ReservedString) Name() string  { return r.label }
func (r *ReservedString) Align() uint32 { return 1 }

// Size always returns the reserved size, never the string length.
func (r *ReservedString) Size() uint32 { return r.size }

// Value returns the stored string.
func (r *ReservedString) Value() string { return r.s }

// WriteTo writes the string and zero-pads to the reserved size.
func (r *ReservedString) WriteTo(buf []byte, _ uint32, _ *Arena) error {
	n := copy(buf, r.s)
	clear(buf[n:])
	return nil
}
