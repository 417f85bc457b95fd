package inspect

import (
	"fmt"

	"github.com/wippyai/dlltab/coff"
	ibin "github.com/wippyai/dlltab/internal/binary"
)

// Image is the read side of a laid-out image. *linker.Image satisfies it.
type Image interface {
	ReadRVA(rva, n uint32) ([]byte, error)
	Bytes(rva uint32) ([]byte, error)
}

// Decoder reads PE tables out of an Image.
type Decoder struct {
	img    Image
	target coff.Target
}

// New creates a decoder for an image built for target.
func New(img Image, target coff.Target) *Decoder {
	return &Decoder{img: img, target: target}
}

// Symbol is one decoded import.
type Symbol struct {
	Name      string
	Hint      uint16
	Ordinal   uint16
	ByOrdinal bool
	// Slot is the RVA of the symbol's address table entry and Value its contents.
	Slot  uint32
	Value uint64
}

// ImportDLL is one decoded import directory entry.
type ImportDLL struct {
	Name    string
	Lookup  uint32
	Address uint32
	NameRVA uint32
	Symbols []Symbol
}

// DelayDLL is one decoded delay-load descriptor.
type DelayDLL struct {
	Name         string
	Attributes   uint32
	NameRVA      uint32
	ModuleHandle uint32
	Address      uint32
	NameTable    uint32
	Symbols      []DelaySymbol
}

// DelaySymbol is a delay-loaded import together with the thunk its slot
// initially points at.
type DelaySymbol struct {
	Symbol
	Thunk uint32
}

// FixPathHeader is the decoded table of reserved DLL name slots.
type FixPathHeader struct {
	Version    uint32
	MaxSize    uint32
	IData      []uint32
	DelayIData []uint32
	Names      []string
	DelayNames []string
}

// RuntimeFunction is one exception directory record.
type RuntimeFunction struct {
	Begin  uint32
	End    uint32
	Unwind uint32
}

func (d *Decoder) wide() bool { return d.target.Is64() }

func (d *Decoder) reader(table string, rva, n uint32) (*ibin.Reader, error) {
	data, err := d.img.ReadRVA(rva, n)
	if err != nil {
		return nil, &ibin.ParseError{Table: table, Err: err}
	}
	return ibin.NewReader(data), nil
}

func (d *Decoder) cstring(table string, rva uint32) (string, error) {
	data, err := d.img.Bytes(rva)
	if err != nil {
		return "", &ibin.ParseError{Table: table, Err: err}
	}
	r := ibin.NewReader(data)
	s, err := r.CString()
	if err != nil {
		return "", r.WrapError(table, err)
	}
	return s, nil
}

// Imports decodes the import directory at dir. The table ends at the first
// all-zero entry.
func (d *Decoder) Imports(dir coff.DataDirectory) ([]ImportDLL, error) {
	if dir.RVA == 0 {
		return nil, nil
	}
	var dlls []ImportDLL
	for rva := dir.RVA; ; rva += coff.ImportDirectoryEntrySize {
		r, err := d.reader("import directory", rva, coff.ImportDirectoryEntrySize)
		if err != nil {
			return nil, err
		}
		var f [5]uint32
		for i := range f {
			if f[i], err = r.U32(); err != nil {
				return nil, r.WrapError("import directory", err)
			}
		}
		if f == [5]uint32{} {
			return dlls, nil
		}
		dll := ImportDLL{Lookup: f[0], NameRVA: f[3], Address: f[4]}
		if dll.Name, err = d.cstring("import dll name", dll.NameRVA); err != nil {
			return nil, err
		}
		if dll.Symbols, err = d.symbols(dll.Lookup, dll.Address); err != nil {
			return nil, fmt.Errorf("imports of %s: %w", dll.Name, err)
		}
		dlls = append(dlls, dll)
	}
}

// symbols walks a lookup table and its parallel address table until the
// null entry.
func (d *Decoder) symbols(lookup, address uint32) ([]Symbol, error) {
	word := d.target.WordSize()
	flag := d.target.OrdinalFlag()
	var syms []Symbol
	for i := uint32(0); ; i++ {
		r, err := d.reader("lookup table", lookup+i*word, word)
		if err != nil {
			return nil, err
		}
		entry, err := r.Word(d.wide())
		if err != nil {
			return nil, r.WrapError("lookup table", err)
		}
		if entry == 0 {
			return syms, nil
		}

		sym := Symbol{Slot: address + i*word}
		if entry&flag != 0 {
			sym.ByOrdinal = true
			sym.Ordinal = uint16(entry)
		} else {
			hr, err := d.reader("hint/name", uint32(entry), 2)
			if err != nil {
				return nil, err
			}
			if sym.Hint, err = hr.U16(); err != nil {
				return nil, hr.WrapError("hint/name", err)
			}
			if sym.Name, err = d.cstring("hint/name", uint32(entry)+2); err != nil {
				return nil, err
			}
		}

		ar, err := d.reader("address table", sym.Slot, word)
		if err != nil {
			return nil, err
		}
		if sym.Value, err = ar.Word(d.wide()); err != nil {
			return nil, ar.WrapError("address table", err)
		}
		syms = append(syms, sym)
	}
}

// DelayImports decodes the delay-load directory at dir. Slot values are
// virtual addresses; each symbol's Thunk is the RVA they resolve to.
func (d *Decoder) DelayImports(dir coff.DataDirectory) ([]DelayDLL, error) {
	if dir.RVA == 0 {
		return nil, nil
	}
	var dlls []DelayDLL
	for rva := dir.RVA; ; rva += coff.DelayDirectoryEntrySize {
		r, err := d.reader("delay directory", rva, coff.DelayDirectoryEntrySize)
		if err != nil {
			return nil, err
		}
		var f [8]uint32
		for i := range f {
			if f[i], err = r.U32(); err != nil {
				return nil, r.WrapError("delay directory", err)
			}
		}
		if f == [8]uint32{} {
			return dlls, nil
		}
		dll := DelayDLL{
			Attributes:   f[0],
			NameRVA:      f[1],
			ModuleHandle: f[2],
			Address:      f[3],
			NameTable:    f[4],
		}
		if dll.Name, err = d.cstring("delay dll name", dll.NameRVA); err != nil {
			return nil, err
		}
		syms, err := d.symbols(dll.NameTable, dll.Address)
		if err != nil {
			return nil, fmt.Errorf("delay imports of %s: %w", dll.Name, err)
		}
		for _, s := range syms {
			thunk := uint32(s.Value - d.target.ImageBase)
			if d.target.Machine == coff.MachineARMNT {
				thunk &^= 1
			}
			dll.Symbols = append(dll.Symbols, DelaySymbol{Symbol: s, Thunk: thunk})
		}
		dlls = append(dlls, dll)
	}
}

// FixPath decodes the reserved DLL name header at rva.
func (d *Decoder) FixPath(rva uint32) (*FixPathHeader, error) {
	r, err := d.reader("fixpath header", rva, 16)
	if err != nil {
		return nil, err
	}
	var f [4]uint32
	for i := range f {
		if f[i], err = r.U32(); err != nil {
			return nil, r.WrapError("fixpath header", err)
		}
	}
	h := &FixPathHeader{Version: f[0], MaxSize: f[1]}
	if f[2]+f[3] == 0 {
		return h, nil
	}

	r, err = d.reader("fixpath header", rva+16, 4*(f[2]+f[3]))
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < f[2]+f[3]; i++ {
		v, err := r.U32()
		if err != nil {
			return nil, r.WrapError("fixpath header", err)
		}
		name, err := d.cstring("fixpath name", v)
		if err != nil {
			return nil, err
		}
		if i < f[2] {
			h.IData = append(h.IData, v)
			h.Names = append(h.Names, name)
		} else {
			h.DelayIData = append(h.DelayIData, v)
			h.DelayNames = append(h.DelayNames, name)
		}
	}
	return h, nil
}

// RuntimeFunctions decodes the exception directory at dir.
func (d *Decoder) RuntimeFunctions(dir coff.DataDirectory) ([]RuntimeFunction, error) {
	if dir.RVA == 0 {
		return nil, nil
	}
	r, err := d.reader("exception directory", dir.RVA, dir.Size)
	if err != nil {
		return nil, err
	}
	fns := make([]RuntimeFunction, 0, dir.Size/coff.RuntimeFunctionSize)
	for r.Len() >= coff.RuntimeFunctionSize {
		var f [3]uint32
		for i := range f {
			if f[i], err = r.U32(); err != nil {
				return nil, r.WrapError("exception directory", err)
			}
		}
		fns = append(fns, RuntimeFunction{Begin: f[0], End: f[1], Unwind: f[2]})
	}
	return fns, nil
}

// BaseRelocs decodes the base relocation blocks at dir. ABSOLUTE padding
// entries are dropped.
func (d *Decoder) BaseRelocs(dir coff.DataDirectory) ([]Reloc, error) {
	if dir.RVA == 0 {
		return nil, nil
	}
	r, err := d.reader("base relocations", dir.RVA, dir.Size)
	if err != nil {
		return nil, err
	}
	var relocs []Reloc
	for r.Len() > 0 {
		page, err := r.U32()
		if err != nil {
			return nil, r.WrapError("base relocations", err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, r.WrapError("base relocations", err)
		}
		if size < 8 || size%2 != 0 {
			return nil, r.WrapError("base relocations", fmt.Errorf("bad block size %d", size))
		}
		for n := (size - 8) / 2; n > 0; n-- {
			e, err := r.U16()
			if err != nil {
				return nil, r.WrapError("base relocations", err)
			}
			if e>>12 == coff.RelBasedAbsolute {
				continue
			}
			relocs = append(relocs, Reloc{RVA: page + uint32(e&0xfff), Type: e >> 12})
		}
	}
	return relocs, nil
}

// Reloc is one decoded base relocation.
type Reloc struct {
	RVA  uint32
	Type uint16
}
