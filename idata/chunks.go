package idata

import (
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	ibin "github.com/wippyai/dlltab/internal/binary"
)

// hintName is a hint/name table entry: u16 hint, the name and a NUL, padded
// to an even length.
type hintName struct {
	label string
	name  string
	hint  uint16
}

// NewHintName returns a hint/name table entry.
func NewHintName(label, name string, hint uint16) chunk.Chunk {
	return &hintName{label: label, name: name, hint: hint}
}

func (h *hintName) Name() string  { return h.label }
func (h *hintName) Align() uint32 { return 2 }

func (h *hintName) Size() uint32 {
	return chunk.AlignTo(uint32(len(h.name))+3, 2)
}

func (h *hintName) WriteTo(buf []byte, _ uint32, _ *chunk.Arena) error {
	w := ibin.NewWriter()
	w.U16(h.hint)
	w.CString(h.name)
	w.CopyTo(buf)
	return nil
}

// lookup is a by-name entry of a lookup or address table. It holds the RVA
// of the symbol's hint/name entry.
type lookup struct {
	label string
	hint  chunk.Ref
	wide  bool
}

// NewLookup returns a by-name lookup or address table entry referring to
// the hint/name chunk hint.
func NewLookup(label string, hint chunk.Ref, wide bool) chunk.Chunk {
	return &lookup{label: label, hint: hint, wide: wide}
}

func (l *lookup) Name() string  { return l.label }
func (l *lookup) Size() uint32  { return wordSize(l.wide) }
func (l *lookup) Align() uint32 { return wordSize(l.wide) }

func (l *lookup) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	rva, err := a.RVA(l.hint)
	if err != nil {
		return err
	}
	w := ibin.NewWriter()
	w.Word(uint64(rva), l.wide)
	w.CopyTo(buf)
	return nil
}

// ordinalOnly is a by-ordinal entry of a lookup or address table: the
// ordinal with the word's top bit set.
type ordinalOnly struct {
	label   string
	ordinal uint16
	wide    bool
}

// NewOrdinalEntry returns a by-ordinal lookup or address table entry.
func NewOrdinalEntry(label string, ordinal uint16, wide bool) chunk.Chunk {
	return &ordinalOnly{label: label, ordinal: ordinal, wide: wide}
}

func (o *ordinalOnly) Name() string  { return o.label }
func (o *ordinalOnly) Size() uint32  { return wordSize(o.wide) }
func (o *ordinalOnly) Align() uint32 { return wordSize(o.wide) }

func (o *ordinalOnly) WriteTo(buf []byte, _ uint32, _ *chunk.Arena) error {
	flag := uint64(coff.OrdinalFlag32)
	if o.wide {
		flag = coff.OrdinalFlag64
	}
	w := ibin.NewWriter()
	w.Word(uint64(o.ordinal)|flag, o.wide)
	w.CopyTo(buf)
	return nil
}

// directory is one import directory entry.
type directory struct {
	dll     string
	lookup  chunk.Ref
	address chunk.Ref
	name    chunk.Ref
}

func (d *directory) Name() string  { return "idata.dir." + d.dll }
func (d *directory) Size() uint32  { return coff.ImportDirectoryEntrySize }
func (d *directory) Align() uint32 { return 4 }

func (d *directory) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	var rvas [3]uint32
	for i, ref := range []chunk.Ref{d.lookup, d.name, d.address} {
		rva, err := a.RVA(ref)
		if err != nil {
			return err
		}
		rvas[i] = rva
	}
	w := ibin.NewWriter()
	w.U32(rvas[0])
	w.U32(0) // TimeDateStamp
	w.U32(0) // ForwarderChain
	w.U32(rvas[1])
	w.U32(rvas[2])
	w.CopyTo(buf)
	return nil
}

func wordSize(wide bool) uint32 {
	if wide {
		return 8
	}
	return 4
}
