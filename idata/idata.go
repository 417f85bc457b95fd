// Package idata builds the classic import tables of a PE image: the import
// directory, one lookup table and one address table per DLL, the hint/name
// entries and the DLL names.
//
// Imports are added one at a time and grouped by DLL when Create runs:
//
//	b := idata.New(arena, target)
//	b.Add(&dlltab.Import{DLL: "KERNEL32.dll", Name: "ExitProcess"})
//	if err := b.Create(); err != nil {
//		return err
//	}
//	// lay out b.Chunks(), then read b.DirRVA() and b.IATRVA()
//
// Lookup and address tables are structurally identical. The loader
// overwrites the address table with resolved addresses at load time.
package idata

import (
	"go.uber.org/zap"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/errors"
	"github.com/wippyai/dlltab/fixpath"
	"github.com/wippyai/dlltab/internal/group"
	"github.com/wippyai/dlltab/internal/phase"
)

// Option configures a Builder.
type Option func(*Builder)

// WithFixPath makes DLL names reserved-size chunks registered with r.
func WithFixPath(r *fixpath.Registry) Option {
	return func(b *Builder) { b.fixPath = r }
}

// Builder collects imports and produces the import table chunks.
type Builder struct {
	arena   *chunk.Arena
	fixPath *fixpath.Registry
	slots   map[*dlltab.Import]chunk.Ref
	imports []*dlltab.Import

	dirs      []chunk.Ref
	lookups   []chunk.Ref
	addresses []chunk.Ref
	hints     []chunk.Ref
	dllNames  []chunk.Ref

	target coff.Target
	phase  phase.Marker
}

// New creates a builder that adds its chunks to a.
func New(a *chunk.Arena, target coff.Target, opts ...Option) *Builder {
	b := &Builder{
		arena:  a,
		target: target,
		phase:  phase.New(errors.PhaseImport),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add records an import. Validation is deferred to Create.
func (b *Builder) Add(imp *dlltab.Import) error {
	if err := b.phase.Collecting("Add"); err != nil {
		return err
	}
	b.imports = append(b.imports, imp)
	return nil
}

// Empty reports whether no import has been added.
func (b *Builder) Empty() bool {
	return len(b.imports) == 0
}

// Create builds every table. It runs once; with no imports it produces no
// chunks at all.
func (b *Builder) Create() error {
	if err := b.phase.Collecting("Create"); err != nil {
		return err
	}
	if err := b.create(); err != nil {
		b.phase.Fail()
		return err
	}
	b.phase.Seal()
	return nil
}

func (b *Builder) create() error {
	b.slots = make(map[*dlltab.Import]chunk.Ref, len(b.imports))

	wide := b.target.Is64()
	word := b.target.WordSize()

	for _, g := range group.ByDLL(b.imports) {
		name, err := b.dllName(g.Name)
		if err != nil {
			return err
		}
		b.dllNames = append(b.dllNames, name)

		lookupStart := len(b.lookups)
		addressStart := len(b.addresses)

		for _, imp := range g.Imports {
			if imp.Kind == dlltab.ImportByOrdinal {
				b.lookups = append(b.lookups, b.arena.Add(NewOrdinalEntry("idata.ilt."+imp.Label(), imp.Ordinal, wide)))
				slot := b.arena.Add(NewOrdinalEntry("idata.iat."+imp.Label(), imp.Ordinal, wide))
				b.addresses = append(b.addresses, slot)
				b.slots[imp] = slot
				continue
			}

			if imp.Name == "" {
				return errors.New(errors.PhaseImport, errors.KindInvalidInput).
					DLL(g.Name).
					Detail("by-name import without a name").
					Build()
			}
			hint := b.arena.Add(NewHintName("idata.hint."+imp.Name, imp.Name, imp.Hint))
			b.hints = append(b.hints, hint)
			b.lookups = append(b.lookups, b.arena.Add(NewLookup("idata.ilt."+imp.Name, hint, wide)))
			slot := b.arena.Add(NewLookup("idata.iat."+imp.Name, hint, wide))
			b.addresses = append(b.addresses, slot)
			b.slots[imp] = slot
		}

		b.lookups = append(b.lookups, b.arena.Add(chunk.NewNull("idata.ilt.end."+g.Name, word, word)))
		b.addresses = append(b.addresses, b.arena.Add(chunk.NewNull("idata.iat.end."+g.Name, word, word)))

		b.dirs = append(b.dirs, b.arena.Add(&directory{
			dll:     g.Name,
			lookup:  b.lookups[lookupStart],
			address: b.addresses[addressStart],
			name:    name,
		}))

		Logger().Debug("import group",
			zap.String("dll", g.Name),
			zap.Int("symbols", len(g.Imports)),
		)
	}

	if len(b.dirs) > 0 {
		b.dirs = append(b.dirs, b.arena.Add(chunk.NewNull("idata.dir.end", coff.ImportDirectoryEntrySize, 4)))
	}
	return nil
}

func (b *Builder) dllName(dll string) (chunk.Ref, error) {
	if b.fixPath != nil {
		return b.fixPath.AddIData(dll)
	}
	return b.arena.Add(chunk.NewString("idata.name."+dll, dll)), nil
}

// Dirs returns the directory entries followed by the null sentinel.
func (b *Builder) Dirs() []chunk.Ref { return b.dirs }

// Lookups returns every lookup table, grouped by DLL, terminators included.
func (b *Builder) Lookups() []chunk.Ref { return b.lookups }

// Addresses returns every address table in the same shape as Lookups.
func (b *Builder) Addresses() []chunk.Ref { return b.addresses }

// Hints returns the hint/name entries of by-name imports.
func (b *Builder) Hints() []chunk.Ref { return b.hints }

// DLLNames returns one name chunk per DLL.
func (b *Builder) DLLNames() []chunk.Ref { return b.dllNames }

// Chunks returns every chunk in emission order.
func (b *Builder) Chunks() []chunk.Ref {
	n := len(b.dirs) + len(b.lookups) + len(b.addresses) + len(b.hints) + len(b.dllNames)
	out := make([]chunk.Ref, 0, n)
	out = append(out, b.dirs...)
	out = append(out, b.lookups...)
	out = append(out, b.addresses...)
	out = append(out, b.hints...)
	out = append(out, b.dllNames...)
	return out
}

// Slot returns the address table entry the loader patches for imp.
func (b *Builder) Slot(imp *dlltab.Import) (chunk.Ref, error) {
	if err := b.phase.Built("Slot"); err != nil {
		return 0, err
	}
	ref, ok := b.slots[imp]
	if !ok {
		return 0, errors.NotFound(errors.PhaseImport, "import", imp.Label())
	}
	return ref, nil
}

// SlotSymbol returns imp's address table entry as the __imp_ symbol call
// sites reference.
func (b *Builder) SlotSymbol(imp *dlltab.Import) (chunk.Symbol, error) {
	ref, err := b.Slot(imp)
	if err != nil {
		return chunk.Symbol{}, err
	}
	return chunk.Symbol{Arena: b.arena, Label: "__imp_" + imp.Label(), Ref: ref}, nil
}

// DirRVA returns the address of the import directory.
func (b *Builder) DirRVA() (uint32, error) {
	rva, _, err := b.dirSpan()
	return rva, err
}

// DirSize returns the size of the import directory including its sentinel.
func (b *Builder) DirSize() (uint32, error) {
	_, size, err := b.dirSpan()
	return size, err
}

func (b *Builder) dirSpan() (uint32, uint32, error) {
	if err := b.phase.Built("DirRVA"); err != nil {
		return 0, 0, err
	}
	return b.arena.Span(b.dirs)
}

// IATRVA returns the address of the first address table.
func (b *Builder) IATRVA() (uint32, error) {
	rva, _, err := b.iatSpan()
	return rva, err
}

// IATSize returns the size spanned by all address tables.
func (b *Builder) IATSize() (uint32, error) {
	_, size, err := b.iatSpan()
	return size, err
}

func (b *Builder) iatSpan() (uint32, uint32, error) {
	if err := b.phase.Built("IATRVA"); err != nil {
		return 0, 0, err
	}
	return b.arena.Span(b.addresses)
}
