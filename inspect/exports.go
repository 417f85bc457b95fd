package inspect

import (
	"fmt"
	"sort"

	"github.com/wippyai/dlltab/coff"
)

// Export is one decoded export address table slot.
type Export struct {
	Name    string
	Forward string
	RVA     uint32
	Ordinal uint16
}

// ExportTable is a decoded export directory.
type ExportTable struct {
	DLLName string
	// Exports holds the non-empty address table slots in ordinal order.
	Exports       []Export
	TimeDateStamp uint32
	Base          uint32
	MajorVersion  uint16
	MinorVersion  uint16

	names []string
	named []int
}

// Names returns the export names in name pointer table order.
func (t *ExportTable) Names() []string { return t.names }

// Find looks name up the way the loader does, by binary search over the
// name pointer table, and returns the export it maps to.
func (t *ExportTable) Find(name string) (Export, bool) {
	i := sort.SearchStrings(t.names, name)
	if i == len(t.names) || t.names[i] != name {
		return Export{}, false
	}
	return t.Exports[t.named[i]], true
}

// Exports decodes the export directory at dir. Address table slots that
// point inside dir are forwarders. Empty slots are skipped.
func (d *Decoder) Exports(dir coff.DataDirectory) (*ExportTable, error) {
	if dir.RVA == 0 {
		return nil, nil
	}
	r, err := d.reader("export directory", dir.RVA, coff.ExportDirectorySize)
	if err != nil {
		return nil, err
	}
	var (
		hdr          [2]uint32
		major, minor uint16
		rest         [7]uint32
	)
	for i := range hdr {
		if hdr[i], err = r.U32(); err != nil {
			return nil, r.WrapError("export directory", err)
		}
	}
	if major, err = r.U16(); err != nil {
		return nil, r.WrapError("export directory", err)
	}
	if minor, err = r.U16(); err != nil {
		return nil, r.WrapError("export directory", err)
	}
	for i := range rest {
		if rest[i], err = r.U32(); err != nil {
			return nil, r.WrapError("export directory", err)
		}
	}
	nameRVA, base := rest[0], rest[1]
	numFuncs, numNames := rest[2], rest[3]
	eatRVA, ptrRVA, ordRVA := rest[4], rest[5], rest[6]

	t := &ExportTable{
		TimeDateStamp: hdr[1],
		MajorVersion:  major,
		MinorVersion:  minor,
		Base:          base,
	}
	if t.DLLName, err = d.cstring("export dll name", nameRVA); err != nil {
		return nil, err
	}

	eat, err := d.words("export address table", eatRVA, numFuncs)
	if err != nil {
		return nil, err
	}
	for i, v := range eat {
		if v == 0 {
			continue
		}
		e := Export{RVA: v, Ordinal: uint16(t.Base + uint32(i))}
		if v >= dir.RVA && v-dir.RVA < dir.Size {
			if e.Forward, err = d.cstring("export forwarder", v); err != nil {
				return nil, err
			}
		}
		t.Exports = append(t.Exports, e)
	}

	ptrs, err := d.words("export name pointers", ptrRVA, numNames)
	if err != nil {
		return nil, err
	}
	if numNames > 0 {
		or, err := d.reader("export ordinals", ordRVA, 2*numNames)
		if err != nil {
			return nil, err
		}
		byOrdinal := make(map[uint16]int, len(t.Exports))
		for i, e := range t.Exports {
			byOrdinal[e.Ordinal] = i
		}
		for _, p := range ptrs {
			name, err := d.cstring("export name", p)
			if err != nil {
				return nil, err
			}
			idx, err := or.U16()
			if err != nil {
				return nil, or.WrapError("export ordinals", err)
			}
			pos, ok := byOrdinal[uint16(t.Base)+idx]
			if !ok {
				return nil, or.WrapError("export ordinals",
					fmt.Errorf("%s maps to empty slot %d", name, idx))
			}
			t.Exports[pos].Name = name
			t.names = append(t.names, name)
			t.named = append(t.named, pos)
		}
	}
	return t, nil
}

func (d *Decoder) words(table string, rva, n uint32) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	r, err := d.reader(table, rva, 4*n)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.U32(); err != nil {
			return nil, r.WrapError(table, err)
		}
	}
	return out, nil
}
