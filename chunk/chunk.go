package chunk

// Chunk is a block of output bytes with a deferred address.
type Chunk interface {
	Name() string
	Size() uint32
	Align() uint32
	// WriteTo serializes the chunk placed at rva into buf, which is exactly
	// Size() zeroed bytes. Addresses of referenced chunks are read from a.
	WriteTo(buf []byte, rva uint32, a *Arena) error
}

// Relocatable is implemented by chunks that embed absolute virtual addresses
// and therefore need base relocations when the image is rebased.
type Relocatable interface {
	BaseRelocs(rva uint32) []BaseReloc
}

// BaseReloc is one base relocation entry.
type BaseReloc struct {
	RVA  uint32
	Type uint16
}

// AlignTo rounds v up to a multiple of align. An align of 0 or 1 returns v.
func AlignTo(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
