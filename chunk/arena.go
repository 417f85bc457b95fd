package chunk

import (
	"fmt"
	"sort"

	"github.com/wippyai/dlltab/errors"
)

// Ref is a stable handle to a chunk inside one Arena.
type Ref uint32

// Arena owns every chunk of a link and the addresses layout assigns to them.
// Refs are indices into the arena and never change.
type Arena struct {
	chunks []Chunk
	rvas   []uint32
	placed []bool
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add appends a chunk and returns its handle.
func (a *Arena) Add(c Chunk) Ref {
	ref := Ref(len(a.chunks))
	a.chunks = append(a.chunks, c)
	a.rvas = append(a.rvas, 0)
	a.placed = append(a.placed, false)
	return ref
}

// Len returns the number of chunks in the arena.
func (a *Arena) Len() int {
	return len(a.chunks)
}

// Get retrieves a chunk by handle.
func (a *Arena) Get(ref Ref) (Chunk, error) {
	if int(ref) >= len(a.chunks) {
		return nil, errors.OutOfBounds(errors.PhaseLayout, "chunk", int(ref), len(a.chunks))
	}
	return a.chunks[ref], nil
}

// Size returns the size of a chunk. Sizes never depend on layout.
func (a *Arena) Size(ref Ref) (uint32, error) {
	c, err := a.Get(ref)
	if err != nil {
		return 0, err
	}
	return c.Size(), nil
}

// Place assigns an RVA to a chunk.
func (a *Arena) Place(ref Ref, rva uint32) error {
	if int(ref) >= len(a.chunks) {
		return errors.OutOfBounds(errors.PhaseLayout, "chunk", int(ref), len(a.chunks))
	}
	a.rvas[ref] = rva
	a.placed[ref] = true
	return nil
}

// Placed reports whether layout has assigned an address to the chunk.
func (a *Arena) Placed(ref Ref) bool {
	return int(ref) < len(a.placed) && a.placed[ref]
}

// RVA returns the address assigned to a chunk.
func (a *Arena) RVA(ref Ref) (uint32, error) {
	c, err := a.Get(ref)
	if err != nil {
		return 0, err
	}
	if !a.placed[ref] {
		return 0, errors.NotPlaced(errors.PhaseLayout, describe(ref, c))
	}
	return a.rvas[ref], nil
}

// End returns the address just past a placed chunk.
func (a *Arena) End(ref Ref) (uint32, error) {
	rva, err := a.RVA(ref)
	if err != nil {
		return 0, err
	}
	return rva + a.chunks[ref].Size(), nil
}

// Span returns the address range covered by refs, from the first chunk's
// address to the end of the last one. refs must be in address order.
func (a *Arena) Span(refs []Ref) (rva, size uint32, err error) {
	if len(refs) == 0 {
		return 0, 0, nil
	}
	start, err := a.RVA(refs[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := a.End(refs[len(refs)-1])
	if err != nil {
		return 0, 0, err
	}
	return start, end - start, nil
}

// Layout places refs one after another starting at start, honoring each
// chunk's alignment. It returns the first address past the last chunk.
func (a *Arena) Layout(start uint32, refs []Ref) (uint32, error) {
	addr := start
	for _, ref := range refs {
		c, err := a.Get(ref)
		if err != nil {
			return 0, err
		}
		addr = AlignTo(addr, c.Align())
		a.rvas[ref] = addr
		a.placed[ref] = true
		addr += c.Size()
	}
	return addr, nil
}

// Write serializes a single placed chunk.
func (a *Arena) Write(ref Ref) ([]byte, error) {
	rva, err := a.RVA(ref)
	if err != nil {
		return nil, err
	}
	c := a.chunks[ref]
	buf := make([]byte, c.Size())
	if err := c.WriteTo(buf, rva, a); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteInto serializes refs into buf, where buf[0] corresponds to address base.
func (a *Arena) WriteInto(buf []byte, base uint32, refs []Ref) error {
	for _, ref := range refs {
		rva, err := a.RVA(ref)
		if err != nil {
			return err
		}
		c := a.chunks[ref]
		if rva < base || uint64(rva-base)+uint64(c.Size()) > uint64(len(buf)) {
			return errors.New(errors.PhaseWrite, errors.KindOutOfBounds).
				Value(rva).
				Detail("%s at %#x does not fit buffer at %#x+%#x", describe(ref, c), rva, base, len(buf)).
				Build()
		}
		dst := buf[rva-base : rva-base+c.Size()]
		clear(dst)
		if err := c.WriteTo(dst, rva, a); err != nil {
			return err
		}
	}
	return nil
}

// WriteAll serializes the contiguous run refs covers, padding included.
func (a *Arena) WriteAll(refs []Ref) ([]byte, error) {
	rva, size, err := a.Span(refs)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := a.WriteInto(buf, rva, refs); err != nil {
		return nil, err
	}
	return buf, nil
}

// BaseRelocs collects the base relocations of refs, sorted by address.
func (a *Arena) BaseRelocs(refs []Ref) ([]BaseReloc, error) {
	var out []BaseReloc
	for _, ref := range refs {
		c, err := a.Get(ref)
		if err != nil {
			return nil, err
		}
		r, ok := c.(Relocatable)
		if !ok {
			continue
		}
		rva, err := a.RVA(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, r.BaseRelocs(rva)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RVA < out[j].RVA })
	return out, nil
}

func describe(ref Ref, c Chunk) string {
	return fmt.Sprintf("%s#%d", c.Name(), ref)
}
