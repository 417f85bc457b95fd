package delayload

import (
	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
)

var thunkARM64 = []byte{
	0x11, 0x00, 0x00, 0x90, // adrp    x17, slot
	0x31, 0x02, 0x00, 0x91, // add     x17, x17, :lo12:slot
	0x00, 0x00, 0x00, 0x14, // b       tailmerge
}

var tailMergeARM64 = []byte{
	0xfd, 0x7b, 0xb3, 0xa9, // stp     x29, x30, [sp, #-208]!
	0xfd, 0x03, 0x00, 0x91, // mov     x29, sp
	0xe0, 0x07, 0x01, 0xa9, // stp     x0, x1, [sp, #16]
	0xe2, 0x0f, 0x02, 0xa9, // stp     x2, x3, [sp, #32]
	0xe4, 0x17, 0x03, 0xa9, // stp     x4, x5, [sp, #48]
	0xe6, 0x1f, 0x04, 0xa9, // stp     x6, x7, [sp, #64]
	0xe0, 0x87, 0x02, 0xad, // stp     q0, q1, [sp, #80]
	0xe2, 0x8f, 0x03, 0xad, // stp     q2, q3, [sp, #112]
	0xe4, 0x97, 0x04, 0xad, // stp     q4, q5, [sp, #144]
	0xe6, 0x9f, 0x05, 0xad, // stp     q6, q7, [sp, #176]
	0xe1, 0x03, 0x11, 0xaa, // mov     x1, x17
	0x00, 0x00, 0x00, 0x90, // adrp    x0, descriptor
	0x00, 0x00, 0x00, 0x91, // add     x0, x0, :lo12:descriptor
	0x00, 0x00, 0x00, 0x94, // bl      helper
	0xf0, 0x03, 0x00, 0xaa, // mov     x16, x0
	0xe6, 0x9f, 0x45, 0xad, // ldp     q6, q7, [sp, #176]
	0xe4, 0x97, 0x44, 0xad, // ldp     q4, q5, [sp, #144]
	0xe2, 0x8f, 0x43, 0xad, // ldp     q2, q3, [sp, #112]
	0xe0, 0x87, 0x42, 0xad, // ldp     q0, q1, [sp, #80]
	0xe6, 0x1f, 0x44, 0xa9, // ldp     x6, x7, [sp, #64]
	0xe4, 0x17, 0x43, 0xa9, // ldp     x4, x5, [sp, #48]
	0xe2, 0x0f, 0x42, 0xa9, // ldp     x2, x3, [sp, #32]
	0xe0, 0x07, 0x41, 0xa9, // ldp     x0, x1, [sp, #16]
	0xfd, 0x7b, 0xcd, 0xa8, // ldp     x29, x30, [sp], #208
	0x00, 0x02, 0x1f, 0xd6, // br      x16
}

type aarch64 struct{}

func (aarch64) thunk(label string, slot, tailMerge chunk.Ref) chunk.Chunk {
	return &thunkChunkARM64{code: code{label: label, tmpl: thunkARM64, align: 4}, slot: slot, tailMerge: tailMerge}
}

func (aarch64) tailMerge(label string, desc chunk.Ref, helper dlltab.Defined) chunk.Chunk {
	return &tailMergeChunkARM64{code: code{label: label, tmpl: tailMergeARM64, align: 4}, desc: desc, helper: helper}
}

type thunkChunkARM64 struct {
	code
	slot      chunk.Ref
	tailMerge chunk.Ref
}

func (t *thunkChunkARM64) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	r, err := rvas(a, t.slot, t.tailMerge)
	if err != nil {
		return err
	}
	t.load(buf)
	arm64Page(buf, 0, r[0], rva)
	arm64Lo12(buf, 4, r[0])
	arm64Branch26(buf, 8, int32(r[1]-rva-8))
	return nil
}

type tailMergeChunkARM64 struct {
	code
	helper dlltab.Defined
	desc   chunk.Ref
}

func (t *tailMergeChunkARM64) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	desc, err := a.RVA(t.desc)
	if err != nil {
		return err
	}
	helper, err := t.helper.RVA()
	if err != nil {
		return err
	}
	t.load(buf)
	arm64Page(buf, 44, desc, rva+44)
	arm64Lo12(buf, 48, desc)
	arm64Branch26(buf, 52, int32(helper-rva-52))
	return nil
}
