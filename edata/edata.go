// Package edata builds the export directory of a PE image.
//
// Unlike the import builders, a Table is built eagerly from the finished
// export set. Its chunks form one contiguous run:
//
//	directory | address table | name pointers | ordinals | DLL name | export names | forwarders
//
// Forwarder strings must lie inside the range the export data directory
// covers, since that is how the loader tells them apart from code addresses.
package edata

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/errors"
)

// Export is one exported symbol.
type Export struct {
	// Target is the exported address. Ignored for forwarders.
	Target dlltab.Defined
	Name   string
	// Forward names the real definition, "OTHER.Func" or "OTHER.#12".
	Forward string
	// Ordinal is the requested ordinal. Zero means assign one.
	Ordinal uint16
	// NoName exports by ordinal only.
	NoName bool
}

// Config holds the directory-level fields.
type Config struct {
	DLLName       string
	TimeDateStamp uint32
	MajorVersion  uint16
	MinorVersion  uint16
	// OrdinalBase is the first ordinal. Zero means 1.
	OrdinalBase uint16
}

// DefaultConfig returns the configuration for dll with ordinals starting at 1.
func DefaultConfig(dll string) Config {
	return Config{DLLName: dll, OrdinalBase: 1}
}

// Entry is an export after ordinal assignment.
type Entry struct {
	Export
	Ordinal uint16
}

// Table is a built export directory.
type Table struct {
	arena   *chunk.Arena
	entries []Entry // ordinal order
	named   []int   // indexes into entries, name order
	refs    []chunk.Ref
	cfg     Config
	max     uint16
}

// New assigns ordinals, validates the set and emits the export chunks into a.
// An empty export set produces no chunks.
func New(a *chunk.Arena, cfg Config, exports []Export) (*Table, error) {
	if cfg.OrdinalBase == 0 {
		cfg.OrdinalBase = 1
	}
	t := &Table{arena: a, cfg: cfg}
	if len(exports) == 0 {
		return t, nil
	}

	entries, err := assignOrdinals(cfg.OrdinalBase, exports)
	if err != nil {
		return nil, err
	}
	t.entries = entries
	t.max = entries[len(entries)-1].Ordinal

	seen := make(map[string]uint16)
	for i, e := range entries {
		if e.Forward == "" && e.Target == nil {
			return nil, errors.New(errors.PhaseExport, errors.KindConfiguration).
				Symbol(e.label()).
				Detail("export has neither a target nor a forwarder").
				Build()
		}
		if e.NoName || e.Name == "" {
			continue
		}
		if prev, dup := seen[e.Name]; dup {
			return nil, errors.New(errors.PhaseExport, errors.KindConfiguration).
				Symbol(e.Name).
				Value(e.Ordinal).
				Detail("name exported twice, at ordinals %d and %d", prev, e.Ordinal).
				Build()
		}
		seen[e.Name] = e.Ordinal
		t.named = append(t.named, i)
	}
	sort.Slice(t.named, func(i, j int) bool {
		return entries[t.named[i]].Name < entries[t.named[j]].Name
	})

	t.emit()

	Logger().Debug("export table",
		zap.String("dll", cfg.DLLName),
		zap.Int("exports", len(entries)),
		zap.Int("named", len(t.named)),
		zap.Uint16("base", cfg.OrdinalBase),
		zap.Uint16("max", t.max),
	)
	return t, nil
}

// assignOrdinals gives every export without an ordinal the next free one
// above both the base and the largest explicit ordinal, and returns the set
// sorted by ordinal.
func assignOrdinals(base uint16, exports []Export) ([]Entry, error) {
	owner := make(map[uint16]string)
	next := uint32(base) - 1
	for _, e := range exports {
		if e.Ordinal == 0 {
			continue
		}
		if e.Ordinal < base {
			return nil, errors.New(errors.PhaseExport, errors.KindConfiguration).
				Symbol(e.label()).
				Value(e.Ordinal).
				Detail("ordinal %d is below the ordinal base %d", e.Ordinal, base).
				Build()
		}
		if first, taken := owner[e.Ordinal]; taken {
			return nil, errors.OrdinalCollision(e.Ordinal, first, e.label())
		}
		owner[e.Ordinal] = e.label()
		next = max(next, uint32(e.Ordinal))
	}

	entries := make([]Entry, 0, len(exports))
	for _, e := range exports {
		ord := uint32(e.Ordinal)
		if ord == 0 {
			next++
			if next > coff.MaxOrdinal {
				return nil, errors.New(errors.PhaseExport, errors.KindConfiguration).
					Symbol(e.label()).
					Detail("ran out of ordinals").
					Build()
			}
			ord = next
		}
		entries = append(entries, Entry{Export: e, Ordinal: uint16(ord)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Ordinal < entries[j].Ordinal })
	return entries, nil
}

func (t *Table) emit() {
	a := t.arena
	addresses := &addressTable{t: t, forwards: make(map[int]chunk.Ref)}
	pointers := &namePointerTable{}
	ordinals := &ordinalTable{}

	dllName := a.Add(chunk.NewString("edata.name", t.cfg.DLLName))
	dir := &directory{t: t, name: dllName}

	dirRef := a.Add(dir)
	dir.addresses = a.Add(addresses)
	dir.pointers = a.Add(pointers)
	dir.ordinals = a.Add(ordinals)
	t.refs = append(t.refs, dirRef, dir.addresses, dir.pointers, dir.ordinals, dllName)

	for _, i := range t.named {
		e := t.entries[i]
		ref := a.Add(chunk.NewString("edata.export."+e.Name, e.Name))
		pointers.names = append(pointers.names, ref)
		ordinals.values = append(ordinals.values, e.Ordinal-t.cfg.OrdinalBase)
		t.refs = append(t.refs, ref)
	}
	for i, e := range t.entries {
		if e.Forward == "" {
			continue
		}
		ref := a.Add(chunk.NewString("edata.forward."+e.label(), e.Forward))
		addresses.forwards[i] = ref
		t.refs = append(t.refs, ref)
	}
}

// Empty reports whether the table has no exports.
func (t *Table) Empty() bool { return len(t.entries) == 0 }

// Chunks returns the export chunks in emission order.
func (t *Table) Chunks() []chunk.Ref { return t.refs }

// Entries returns the exports in ordinal order with ordinals assigned.
func (t *Table) Entries() []Entry { return t.entries }

// Base returns the ordinal base.
func (t *Table) Base() uint16 { return t.cfg.OrdinalBase }

// Names returns the exported names in name-pointer-table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.named))
	for i, idx := range t.named {
		out[i] = t.entries[idx].Name
	}
	return out
}

// Ordinal returns the ordinal assigned to name.
func (t *Table) Ordinal(name string) (uint16, error) {
	i := sort.Search(len(t.named), func(i int) bool {
		return t.entries[t.named[i]].Name >= name
	})
	if i < len(t.named) && t.entries[t.named[i]].Name == name {
		return t.entries[t.named[i]].Ordinal, nil
	}
	return 0, errors.NotFound(errors.PhaseExport, "export", name)
}

// RVA returns the address of the export directory. It is valid once layout
// has placed the table.
func (t *Table) RVA() (uint32, error) {
	rva, _, err := t.arena.Span(t.refs)
	return rva, err
}

// Size returns the size of the whole export range, forwarders included.
func (t *Table) Size() (uint32, error) {
	_, size, err := t.arena.Span(t.refs)
	return size, err
}

func (e Export) label() string {
	if e.Name != "" {
		return e.Name
	}
	if e.Target != nil {
		return e.Target.Name()
	}
	return "<unnamed>"
}
