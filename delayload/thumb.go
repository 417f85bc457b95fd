package delayload

import (
	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
)

var thunkARM = []byte{
	0x40, 0xf2, 0x00, 0x0c, // mov.w   ip, #0 slot
	0xc0, 0xf2, 0x00, 0x0c, // mov.t   ip, #0 slot
	0x00, 0xf0, 0x00, 0xb8, // b.w     tailmerge
}

var tailMergeARM = []byte{
	0x2d, 0xe9, 0x0f, 0x48, // push.w  {r0, r1, r2, r3, r11, lr}
	0x0d, 0xf2, 0x10, 0x0b, // addw    r11, sp, #16
	0x2d, 0xed, 0x10, 0x0b, // vpush   {d0-d7}
	0x61, 0x46,             // mov     r1, ip
	0x40, 0xf2, 0x00, 0x00, // mov.w   r0, #0 descriptor
	0xc0, 0xf2, 0x00, 0x00, // mov.t   r0, #0 descriptor
	0x00, 0xf0, 0x00, 0xd0, // bl      helper
	0x84, 0x46,             // mov     ip, r0
	0xbd, 0xec, 0x10, 0x0b, // vpop    {d0-d7}
	0xbd, 0xe8, 0x0f, 0x48, // pop.w   {r0, r1, r2, r3, r11, lr}
	0x60, 0x47,             // bx      ip
}

// thumb is ARMNT: Thumb-2 code loading absolute addresses with MOVW/MOVT.
type thumb struct {
	imageBase uint32
}

func (t thumb) thunk(label string, slot, tailMerge chunk.Ref) chunk.Chunk {
	return &thunkChunkARM{
		code:      code{label: label, tmpl: thunkARM, align: 2},
		imageBase: t.imageBase,
		slot:      slot,
		tailMerge: tailMerge,
	}
}

func (t thumb) tailMerge(label string, desc chunk.Ref, helper dlltab.Defined) chunk.Chunk {
	return &tailMergeChunkARM{
		code:      code{label: label, tmpl: tailMergeARM, align: 2},
		imageBase: t.imageBase,
		desc:      desc,
		helper:    helper,
	}
}

type thunkChunkARM struct {
	code
	imageBase uint32
	slot      chunk.Ref
	tailMerge chunk.Ref
}

func (t *thunkChunkARM) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	r, err := rvas(a, t.slot, t.tailMerge)
	if err != nil {
		return err
	}
	t.load(buf)
	thumbMov32(buf, 0, r[0]+t.imageBase)
	thumbBranch24(buf, 8, int32(r[1]-rva-12))
	return nil
}

func (t *thunkChunkARM) BaseRelocs(rva uint32) []chunk.BaseReloc {
	return []chunk.BaseReloc{{RVA: rva, Type: coff.RelBasedThumbMov32}}
}

type tailMergeChunkARM struct {
	code
	helper    dlltab.Defined
	imageBase uint32
	desc      chunk.Ref
}

func (t *tailMergeChunkARM) WriteTo(buf []byte, rva uint32, a *chunk.Arena) error {
	desc, err := a.RVA(t.desc)
	if err != nil {
		return err
	}
	helper, err := t.helper.RVA()
	if err != nil {
		return err
	}
	t.load(buf)
	thumbMov32(buf, 14, desc+t.imageBase)
	thumbBranch24(buf, 22, int32(helper-rva-26))
	return nil
}

func (t *tailMergeChunkARM) BaseRelocs(rva uint32) []chunk.BaseReloc {
	return []chunk.BaseReloc{{RVA: rva + 14, Type: coff.RelBasedThumbMov32}}
}
