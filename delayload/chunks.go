package delayload

import (
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	ibin "github.com/wippyai/dlltab/internal/binary"
)

// descriptor is one delay-load import descriptor. Attributes is always 1:
// every field holds an RVA.
type descriptor struct {
	dll       string
	name      chunk.Ref
	handle    chunk.Ref
	addresses chunk.Ref
	names     chunk.Ref
}

func (d *descriptor) Name() string  { return "delayload.dir." + d.dll }
func (d *descriptor) Size() uint32  { return coff.DelayDirectoryEntrySize }
func (d *descriptor) Align() uint32 { return 4 }

func (d *descriptor) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	w := ibin.NewWriter()
	w.U32(coff.DelayAttrRVA)
	for _, ref := range []chunk.Ref{d.name, d.handle, d.addresses, d.names} {
		rva, err := a.RVA(ref)
		if err != nil {
			return err
		}
		w.U32(rva)
	}
	w.U32(0) // BoundDelayImportTable
	w.U32(0) // UnloadDelayImportTable
	w.U32(0) // TimeDateStamp
	w.CopyTo(buf)
	return nil
}

// address is a delay-load address table slot. Until the helper patches it,
// it holds the virtual address of the symbol's thunk.
type address struct {
	label  string
	thunk  chunk.Ref
	target coff.Target
}

func (s *address) Name() string  { return s.label }
func (s *address) Size() uint32  { return s.target.WordSize() }
func (s *address) Align() uint32 { return s.target.WordSize() }

func (s *address) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	rva, err := a.RVA(s.thunk)
	if err != nil {
		return err
	}
	va := s.target.ImageBase + uint64(rva)
	if s.target.Machine == coff.MachineARMNT {
		va |= 1
	}
	w := ibin.NewWriter()
	w.Word(va, s.target.Is64())
	w.CopyTo(buf)
	return nil
}

func (s *address) BaseRelocs(rva uint32) []chunk.BaseReloc {
	return []chunk.BaseReloc{{RVA: rva, Type: s.target.AbsRelocType()}}
}

// runtimeFunction is an x64 RUNTIME_FUNCTION covering [begin, end of last).
type runtimeFunction struct {
	label  string
	begin  chunk.Ref
	last   chunk.Ref
	unwind chunk.Ref
}

func (r *runtimeFunction) Name() string  { return r.label }
func (r *runtimeFunction) Size() uint32  { return coff.RuntimeFunctionSize }
func (r *runtimeFunction) Align() uint32 { return 4 }

func (r *runtimeFunction) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	begin, err := a.RVA(r.begin)
	if err != nil {
		return err
	}
	end, err := a.End(r.last)
	if err != nil {
		return err
	}
	unwind, err := a.RVA(r.unwind)
	if err != nil {
		return err
	}
	w := ibin.NewWriter()
	w.U32(begin)
	w.U32(end)
	w.U32(unwind)
	w.CopyTo(buf)
	return nil
}

// code is the shared part of thunk and tail-merge chunks: a fixed
// instruction template patched at write time.
type code struct {
	label string
	tmpl  []byte
	align uint32
}

func (c code) Name() string  { return c.label }
func (c code) Size() uint32  { return uint32(len(c.tmpl)) }
func (c code) Align() uint32 { return c.align }

// load copies the template into buf.
func (c code) load(buf []byte) {
	copy(buf, c.tmpl)
}
