package dlltab

import "strconv"

// ImportKind selects how a symbol is looked up in its DLL.
type ImportKind uint8

const (
	ImportByName ImportKind = iota
	ImportByOrdinal
)

func (k ImportKind) String() string {
	if k == ImportByOrdinal {
		return "ordinal"
	}
	return "name"
}

// Import is a resolved symbol that the image imports from a DLL.
// Builders keep the pointer; the value must not change after Add.
type Import struct {
	// Name is the export name looked up in DLL. Unused for ordinal imports.
	Name string
	DLL  string
	Kind ImportKind
	// Hint is the loader's starting index into the DLL's name pointer table.
	Hint    uint16
	Ordinal uint16
}

// Label returns a diagnostic name for the import.
func (i *Import) Label() string {
	if i.Kind == ImportByOrdinal && i.Name == "" {
		return "#" + strconv.Itoa(int(i.Ordinal))
	}
	return i.Name
}

// Defined is a symbol whose address is known once layout has run.
type Defined interface {
	Name() string
	RVA() (uint32, error)
}

// Fixed is a Defined with an address known up front, such as a symbol placed
// by an earlier link stage.
type Fixed struct {
	Sym  string
	Addr uint32
}

// Name implements Defined.
func (f Fixed) Name() string { return f.Sym }

// RVA implements Defined.
func (f Fixed) RVA() (uint32, error) { return f.Addr, nil }
