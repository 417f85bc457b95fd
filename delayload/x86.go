package delayload

import (
	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
)

var thunkX86 = []byte{
	0xB8, 0, 0, 0, 0, // mov   eax, offset slot
	0xE9, 0, 0, 0, 0, // jmp   tailmerge
}

var tailMergeX86 = []byte{
	0x51,             // push  ecx
	0x52,             // push  edx
	0x50,             // push  eax
	0x68, 0, 0, 0, 0, // push  offset descriptor
	0xE8, 0, 0, 0, 0, // call  helper
	0x5A,             // pop   edx
	0x59,             // pop   ecx
	0xFF, 0xE0,       // jmp   eax
}

// x86 code embeds absolute addresses, so both chunks carry base relocations.
type x86 struct {
	imageBase uint32
}

func (x x86) thunk(label string, slot, tailMerge chunk.Ref) chunk.Chunk {
	return &thunkChunkX86{
		code:      code{label: label, tmpl: thunkX86, align: 1},
		imageBase: x.imageBase,
		slot:      slot,
		tailMerge: tailMerge,
	}
}

func (x x86) tailMerge(label string, desc chunk.Ref, helper dlltab.Defined) chunk.Chunk {
	return &tailMergeChunkX86{
		code:      code{label: label, tmpl: tailMergeX86, align: 1},
		imageBase: x.imageBase,
		desc:      desc,
		helper:    helper,
	}
}

type thunkChunkX86 struct {
	code
	imageBase uint32
	slot      chunk.Ref
	tailMerge chunk.Ref
}

func (t *thunkChunkX86) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	r, err := rvas(a, t.slot, t.tailMerge)
	if err != nil {
		return err
	}
	t.load(buf)
	put32(buf, 1, r[0]+t.imageBase)
	put32(buf, 6, r[1]-rva-10)
	return nil
}

func (t *thunkChunkX86) BaseRelocs(rva uint32) []chunk.BaseReloc {
	return []chunk.BaseReloc{{RVA: rva + 1, Type: coff.RelBasedHighLow}}
}

type tailMergeChunkX86 struct {
	code
	helper    dlltab.Defined
	imageBase uint32
	desc      chunk.Ref
}

func (t *tailMergeChunkX86) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	desc, err := a.RVA(t.desc)
	if err != nil {
		return err
	}
	helper, err := t.helper.RVA()
	if err != nil {
		return err
	}
	t.load(buf)
	put32(buf, 4, desc+t.imageBase)
	put32(buf, 9, helper-rva-13)
	return nil
}

func (t *tailMergeChunkX86) BaseRelocs(rva uint32) []chunk.BaseReloc {
	return []chunk.BaseReloc{{RVA: rva + 4, Type: coff.RelBasedHighLow}}
}
