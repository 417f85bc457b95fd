package delayload

import (
	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
)

var thunkX64 = []byte{
	0x48, 0x8D, 0x05, 0, 0, 0, 0, // lea     rax, [slot]
	0xE9, 0, 0, 0, 0,             // jmp     tailmerge
}

var tailMergeX64 = []byte{
	0x51,                               // push    rcx
	0x52,                               // push    rdx
	0x41, 0x50,                         // push    r8
	0x41, 0x51,                         // push    r9
	0x48, 0x83, 0xEC, 0x48,             // sub     rsp, 48h
	0x66, 0x0F, 0x7F, 0x04, 0x24,       // movdqa  [rsp], xmm0
	0x66, 0x0F, 0x7F, 0x4C, 0x24, 0x10, // movdqa  [rsp+10h], xmm1
	0x66, 0x0F, 0x7F, 0x54, 0x24, 0x20, // movdqa  [rsp+20h], xmm2
	0x66, 0x0F, 0x7F, 0x5C, 0x24, 0x30, // movdqa  [rsp+30h], xmm3
	0x48, 0x8B, 0xD0,                   // mov     rdx, rax
	0x48, 0x8D, 0x0D, 0, 0, 0, 0,       // lea     rcx, [descriptor]
	0xE8, 0, 0, 0, 0,                   // call    helper
	0x66, 0x0F, 0x6F, 0x04, 0x24,       // movdqa  xmm0, [rsp]
	0x66, 0x0F, 0x6F, 0x4C, 0x24, 0x10, // movdqa  xmm1, [rsp+10h]
	0x66, 0x0F, 0x6F, 0x54, 0x24, 0x20, // movdqa  xmm2, [rsp+20h]
	0x66, 0x0F, 0x6F, 0x5C, 0x24, 0x30, // movdqa  xmm3, [rsp+30h]
	0x48, 0x83, 0xC4, 0x48,             // add     rsp, 48h
	0x41, 0x59,                         // pop     r9
	0x41, 0x58,                         // pop     r8
	0x5A,                               // pop     rdx
	0x59,                               // pop     rcx
	0xFF, 0xE0,                         // jmp     rax
}

// tailMergeUnwindX64 describes the tail-merge prologue: four 8-byte pushes
// then a 0x48-byte stack allocation.
var tailMergeUnwindX64 = []byte{
	0x01,       // version 1, no handler
	0x0A,       // prologue size
	0x05,       // unwind code count
	0x00,       // no frame register
	0x0A, 0x82, // +0a: UWOP_ALLOC_SMALL 0x48
	0x06, 0x02, // +06: UWOP_ALLOC_SMALL 8
	0x04, 0x02, // +04: UWOP_ALLOC_SMALL 8
	0x02, 0x02, // +02: UWOP_ALLOC_SMALL 8
	0x01, 0x02, // +01: UWOP_ALLOC_SMALL 8
	0x00, 0x00, // padding
}

// thunkUnwindX64 describes the thunks: leaf code with no prologue.
var thunkUnwindX64 = []byte{0x01, 0x00, 0x00, 0x00}

type x64 struct{}

func (x64) thunk(label string, slot, tailMerge chunk.Ref) chunk.Chunk {
	return &thunkChunkX64{code: code{label: label, tmpl: thunkX64, align: 1}, slot: slot, tailMerge: tailMerge}
}

func (x64) tailMerge(label string, desc chunk.Ref, helper dlltab.Defined) chunk.Chunk {
	return &tailMergeChunkX64{code: code{label: label, tmpl: tailMergeX64, align: 1}, desc: desc, helper: helper}
}

type thunkChunkX64 struct {
	code
	slot      chunk.Ref
	tailMerge chunk.Ref
}

func (t *thunkChunkX64) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	r, err := rvas(a, t.slot, t.tailMerge)
	if err != nil {
		return err
	}
	t.load(buf)
	put32(buf, 3, r[0]-rva-7)
	put32(buf, 8, r[1]-rva-12)
	return nil
}

type tailMergeChunkX64 struct {
	code
	helper dlltab.Defined
	desc   chunk.Ref
}

func (t *tailMergeChunkX64) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	desc, err := a.RVA(t.desc)
	if err != nil {
		return err
	}
	helper, err := t.helper.RVA()
	if err != nil {
		return err
	}
	t.load(buf)
	put32(buf, 39, desc-rva-43)
	put32(buf, 44, helper-rva-48)
	return nil
}
