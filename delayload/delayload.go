// Package delayload builds the delay-load import tables of a PE image and
// the code that resolves them on first call.
//
// For every DLL the builder emits a descriptor, a module-handle cell, a name
// table, an address table and one tail-merge stub. Every imported symbol gets
// a thunk. Until the first call the symbol's address slot points at its
// thunk; the thunk hands the slot to the DLL's tail-merge stub, which calls
// the delay-load helper. The helper loads the DLL, resolves the symbol,
// patches the slot and returns the target, which the stub then jumps to.
//
// Chunks are exposed in five views matching the sections they belong to:
//
//	Chunks()         read-only data: descriptors, name tables, hint/name entries, DLL names
//	DataChunks()     writable data: module handles and address tables
//	CodeChunks()     thunks and tail-merge stubs
//	CodePData()      x64 RUNTIME_FUNCTION records
//	CodeUnwindInfo() x64 unwind info the records point at
package delayload

import (
	"go.uber.org/zap"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/errors"
	"github.com/wippyai/dlltab/fixpath"
	"github.com/wippyai/dlltab/idata"
	"github.com/wippyai/dlltab/internal/group"
	"github.com/wippyai/dlltab/internal/phase"
)

// Option configures a Builder.
type Option func(*Builder)

// WithFixPath makes DLL names reserved-size chunks registered with r.
func WithFixPath(r *fixpath.Registry) Option {
	return func(b *Builder) { b.fixPath = r }
}

// Builder collects delay-loaded imports and produces their tables and code.
type Builder struct {
	arena   *chunk.Arena
	fixPath *fixpath.Registry
	arch    arch
	slots   map[*dlltab.Import]chunk.Ref
	thunkOf map[*dlltab.Import]chunk.Ref
	imports []*dlltab.Import

	dirs          []chunk.Ref
	names         []chunk.Ref
	hintNames     []chunk.Ref
	dllNames      []chunk.Ref
	moduleHandles []chunk.Ref
	addresses     []chunk.Ref
	thunks        []chunk.Ref
	pdata         []chunk.Ref
	unwindInfo    []chunk.Ref

	target coff.Target
	phase  phase.Marker
	unwind bool
}

// New creates a builder for target that adds its chunks to a. Whether
// unwind data is emitted is decided here, once, from the target.
func New(a *chunk.Arena, target coff.Target, opts ...Option) *Builder {
	b := &Builder{
		arena:  a,
		target: target,
		arch:   archFor(target),
		unwind: target.NeedsUnwindInfo(),
		phase:  phase.New(errors.PhaseDelayLoad),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add records a delay-loaded import.
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

// Create builds every table and the code that fills them. helper is the
// resolved delay-load helper, usually __delayLoadHelper2.
func (b *Builder) Create(helper dlltab.Defined) error {
	if helper == nil {
		return errors.Configuration(errors.PhaseDelayLoad, "delay-load helper is not resolved")
	}
	if err := b.phase.Collecting("Create"); err != nil {
		return err
	}
	if b.arch == nil {
		return errors.New(errors.PhaseDelayLoad, errors.KindConfiguration).
			Value(b.target.Machine).
			Detail("no delay-load code for machine %s", b.target.Machine).
			Build()
	}

	b.slots = make(map[*dlltab.Import]chunk.Ref, len(b.imports))
	b.thunkOf = make(map[*dlltab.Import]chunk.Ref, len(b.imports))

	for _, g := range group.ByDLL(b.imports) {
		if err := b.createDLL(g, helper); err != nil {
			b.phase.Fail()
			return err
		}
	}

	if len(b.dirs) > 0 {
		b.dirs = append(b.dirs, b.arena.Add(chunk.NewNull("delayload.dir.end", coff.DelayDirectoryEntrySize, 4)))
	}

	b.phase.Seal()
	return nil
}

func (b *Builder) createDLL(g group.DLL, helper dlltab.Defined) error {
	wide := b.target.Is64()
	word := b.target.WordSize()

	name, err := b.dllName(g.Name)
	if err != nil {
		return err
	}
	b.dllNames = append(b.dllNames, name)

	handle := b.arena.Add(chunk.NewNull("delayload.handle."+g.Name, word, word))
	b.moduleHandles = append(b.moduleHandles, handle)

	desc := &descriptor{dll: g.Name, name: name, handle: handle}
	descRef := b.arena.Add(desc)
	b.dirs = append(b.dirs, descRef)

	// The stub exists before any thunk that jumps to it.
	tm := b.arena.Add(b.arch.tailMerge("__tailMerge_"+g.Name, descRef, helper))

	firstThunk := len(b.thunks)
	firstAddress := len(b.addresses)
	firstName := len(b.names)

	for _, imp := range g.Imports {
		slot := &address{label: "__imp_" + imp.Label(), target: b.target}
		slotRef := b.arena.Add(slot)
		thunk := b.arena.Add(b.arch.thunk("__imp_load_"+imp.Label(), slotRef, tm))
		slot.thunk = thunk

		b.thunks = append(b.thunks, thunk)
		b.addresses = append(b.addresses, slotRef)
		b.slots[imp] = slotRef
		b.thunkOf[imp] = thunk

		if imp.Kind == dlltab.ImportByOrdinal {
			b.names = append(b.names, b.arena.Add(idata.NewOrdinalEntry("delayload.int."+imp.Label(), imp.Ordinal, wide)))
			continue
		}
		if imp.Name == "" {
			return errors.New(errors.PhaseDelayLoad, errors.KindInvalidInput).
				DLL(g.Name).
				Detail("by-name import without a name").
				Build()
		}
		hint := b.arena.Add(idata.NewHintName("delayload.hint."+imp.Name, imp.Name, imp.Hint))
		b.hintNames = append(b.hintNames, hint)
		b.names = append(b.names, b.arena.Add(idata.NewLookup("delayload.int."+imp.Name, hint, wide)))
	}

	b.addresses = append(b.addresses, b.arena.Add(chunk.NewNull("delayload.iat.end."+g.Name, word, word)))
	b.names = append(b.names, b.arena.Add(chunk.NewNull("delayload.int.end."+g.Name, word, word)))

	desc.addresses = b.addresses[firstAddress]
	desc.names = b.names[firstName]

	lastThunk := b.thunks[len(b.thunks)-1]
	b.thunks = append(b.thunks, tm)

	if b.unwind {
		thunkUnwind := b.arena.Add(chunk.NewBlob("delayload.xdata.thunks."+g.Name, thunkUnwindX64, 4))
		tmUnwind := b.arena.Add(chunk.NewBlob("delayload.xdata.tailmerge."+g.Name, tailMergeUnwindX64, 4))
		b.unwindInfo = append(b.unwindInfo, thunkUnwind, tmUnwind)
		b.pdata = append(b.pdata,
			b.arena.Add(&runtimeFunction{
				label:  "delayload.pdata.thunks." + g.Name,
				begin:  b.thunks[firstThunk],
				last:   lastThunk,
				unwind: thunkUnwind,
			}),
			b.arena.Add(&runtimeFunction{
				label:  "delayload.pdata.tailmerge." + g.Name,
				begin:  tm,
				last:   tm,
				unwind: tmUnwind,
			}),
		)
	}

	Logger().Debug("delay-load group",
		zap.String("dll", g.Name),
		zap.Int("symbols", len(g.Imports)),
		zap.Bool("unwind", b.unwind),
	)
	return nil
}

func (b *Builder) dllName(dll string) (chunk.Ref, error) {
	if b.fixPath != nil {
		return b.fixPath.AddDelayIData(dll)
	}
	return b.arena.Add(chunk.NewString("delayload.name."+dll, dll)), nil
}

// Chunks returns the read-only data: descriptors and their sentinel, name
// tables, hint/name entries and DLL names.
func (b *Builder) Chunks() []chunk.Ref {
	out := make([]chunk.Ref, 0, len(b.dirs)+len(b.names)+len(b.hintNames)+len(b.dllNames))
	out = append(out, b.dirs...)
	out = append(out, b.names...)
	out = append(out, b.hintNames...)
	out = append(out, b.dllNames...)
	return out
}

// DataChunks returns the data the helper writes at run time: module
// handles and address tables.
func (b *Builder) DataChunks() []chunk.Ref {
	out := make([]chunk.Ref, 0, len(b.moduleHandles)+len(b.addresses))
	out = append(out, b.moduleHandles...)
	out = append(out, b.addresses...)
	return out
}

// CodeChunks returns the thunks of each DLL followed by its tail-merge stub.
func (b *Builder) CodeChunks() []chunk.Ref { return b.thunks }

// CodePData returns the RUNTIME_FUNCTION records, empty unless the target
// needs unwind data.
func (b *Builder) CodePData() []chunk.Ref { return b.pdata }

// CodeUnwindInfo returns the unwind info the RUNTIME_FUNCTION records use.
func (b *Builder) CodeUnwindInfo() []chunk.Ref { return b.unwindInfo }

// Dirs returns the descriptors followed by the null sentinel.
func (b *Builder) Dirs() []chunk.Ref { return b.dirs }

// DLLNames returns one name chunk per DLL.
func (b *Builder) DLLNames() []chunk.Ref { return b.dllNames }

// DirRVA returns the address of the delay import descriptors.
func (b *Builder) DirRVA() (uint32, error) {
	rva, _, err := b.dirSpan()
	return rva, err
}

// DirSize returns the size of the descriptors including the sentinel.
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

// Slot returns the address table slot of imp, the __imp_ symbol call sites
// reference.
func (b *Builder) Slot(imp *dlltab.Import) (chunk.Symbol, error) {
	return b.symbol("Slot", b.slots, "__imp_", imp)
}

// Thunk returns the load thunk of imp.
func (b *Builder) Thunk(imp *dlltab.Import) (chunk.Symbol, error) {
	return b.symbol("Thunk", b.thunkOf, "__imp_load_", imp)
}

func (b *Builder) symbol(op string, m map[*dlltab.Import]chunk.Ref, prefix string, imp *dlltab.Import) (chunk.Symbol, error) {
	if err := b.phase.Built(op); err != nil {
		return chunk.Symbol{}, err
	}
	ref, ok := m[imp]
	if !ok {
		return chunk.Symbol{}, errors.NotFound(errors.PhaseDelayLoad, "import", imp.Label())
	}
	return chunk.Symbol{Arena: b.arena, Label: prefix + imp.Label(), Ref: ref}, nil
}

// BaseRelocs returns the base relocations of every placed delay-load chunk.
func (b *Builder) BaseRelocs() ([]chunk.BaseReloc, error) {
	if err := b.phase.Built("BaseRelocs"); err != nil {
		return nil, err
	}
	refs := make([]chunk.Ref, 0, len(b.addresses)+len(b.thunks))
	refs = append(refs, b.addresses...)
	refs = append(refs, b.thunks...)
	return b.arena.BaseRelocs(refs)
}
