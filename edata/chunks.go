package edata

import (
	"encoding/binary"

	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	ibin "github.com/wippyai/dlltab/internal/binary"
)

type directory struct {
	t         *Table
	name      chunk.Ref
	addresses chunk.Ref
	pointers  chunk.Ref
	ordinals  chunk.Ref
}

func (d *directory) Name() string  { return "edata.dir" }
func (d *directory) Size() uint32  { return coff.ExportDirectorySize }
func (d *directory) Align() uint32 { return 4 }

func (d *directory) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	var r [4]uint32
	for i, ref := range []chunk.Ref{d.name, d.addresses, d.pointers, d.ordinals} {
		rva, err := a.RVA(ref)
		if err != nil {
			return err
		}
		r[i] = rva
	}
	cfg := d.t.cfg
	w := ibin.NewWriter()
	w.U32(0) // Characteristics
	w.U32(cfg.TimeDateStamp)
	w.U16(cfg.MajorVersion)
	w.U16(cfg.MinorVersion)
	w.U32(r[0])
	w.U32(uint32(cfg.OrdinalBase))
	w.U32(uint32(d.t.max) - uint32(cfg.OrdinalBase) + 1)
	w.U32(uint32(len(d.t.named)))
	w.U32(r[1])
	w.U32(r[2])
	w.U32(r[3])
	w.CopyTo(buf)
	return nil
}

// addressTable is dense over [base, max]. Unused ordinals stay zero.
type addressTable struct {
	t        *Table
	forwards map[int]chunk.Ref
}

func (c *addressTable) Name() string  { return "edata.eat" }
func (c *addressTable) Align() uint32 { return 4 }

func (c *addressTable) Size() uint32 {
	return 4 * (uint32(c.t.max) - uint32(c.t.cfg.OrdinalBase) + 1)
}

func (c *addressTable) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	for i, e := range c.t.entries {
		var (
			rva uint32
			err error
		)
		if ref, ok := c.forwards[i]; ok {
			rva, err = a.RVA(ref)
		} else {
			rva, err = e.Target.RVA()
		}
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[4*(uint32(e.Ordinal)-uint32(c.t.cfg.OrdinalBase)):], rva)
	}
	return nil
}

// namePointerTable lists name RVAs in ascending name order.
type namePointerTable struct {
	names []chunk.Ref
}

func (c *namePointerTable) Name() string  { return "edata.names" }
func (c *namePointerTable) Size() uint32  { return 4 * uint32(len(c.names)) }
func (c *namePointerTable) Align() uint32 { return 4 }

func (c *namePointerTable) WriteTo(buf []byte, _ uint32, a *chunk.Arena) error {
	w := ibin.NewWriter()
	for _, ref := range c.names {
		rva, err := a.RVA(ref)
		if err != nil {
			return err
		}
		w.U32(rva)
	}
	w.CopyTo(buf)
	return nil
}

// ordinalTable parallels the name pointer table with ordinal - base.
type ordinalTable struct {
	values []uint16
}

func (c *ordinalTable) Name() string  { return "edata.ordinals" }
func (c *ordinalTable) Size() uint32  { return 2 * uint32(len(c.values)) }
func (c *ordinalTable) Align() uint32 { return 2 }

func (c *ordinalTable) WriteTo(buf []byte, _ uint32, _ *chunk.Arena) error {
	w := ibin.NewWriter()
	for _, v := range c.values {
		w.U16(v)
	}
	w.CopyTo(buf)
	return nil
}
