package linker

import (
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	ibin "github.com/wippyai/dlltab/internal/binary"
)

const pageSize = 0x1000

// relocBlock holds the base relocations of one 4 KiB page.
type relocBlock struct {
	page    uint32
	entries []uint16
}

// relocTable is the .reloc section body: one block per page, each padded to
// a multiple of four bytes with an ABSOLUTE entry.
type relocTable struct {
	blocks []relocBlock
}

// newRelocTable groups relocs, which must be sorted by address, into blocks.
func newRelocTable(relocs []chunk.BaseReloc) *relocTable {
	t := &relocTable{}
	for _, r := range relocs {
		page := r.RVA &^ (pageSize - 1)
		if n := len(t.blocks); n == 0 || t.blocks[n-1].page != page {
			t.blocks = append(t.blocks, relocBlock{page: page})
		}
		b := &t.blocks[len(t.blocks)-1]
		b.entries = append(b.entries, r.Type<<12|uint16(r.RVA&(pageSize-1)))
	}
	for i := range t.blocks {
		if len(t.blocks[i].entries)%2 != 0 {
			t.blocks[i].entries = append(t.blocks[i].entries, coff.RelBasedAbsolute)
		}
	}
	return t
}

func (t *relocTable) Name() string  { return "reloc" }
func (t *relocTable) Align() uint32 { return 4 }

func (t *relocTable) Size() uint32 {
	var n uint32
	for _, b := range t.blocks {
		n += 8 + 2*uint32(len(b.entries))
	}
	return n
}

func (t *relocTable) WriteTo(buf []byte, _ uint32, _ *chunk.Arena) error {
	w := ibin.NewWriter()
	for _, b := range t.blocks {
		w.U32(b.page)
		w.U32(8 + 2*uint32(len(b.entries)))
		for _, e := range b.entries {
			w.U16(e)
		}
	}
	w.CopyTo(buf)
	return nil
}
