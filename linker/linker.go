package linker

import (
	"go.uber.org/zap"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/delayload"
	"github.com/wippyai/dlltab/edata"
	"github.com/wippyai/dlltab/errors"
	"github.com/wippyai/dlltab/fixpath"
	"github.com/wippyai/dlltab/idata"
	"github.com/wippyai/dlltab/internal/phase"
)

// Options configures linker behavior.
type Options struct {
	// Export carries the export directory fields. Its DLLName is also the
	// image's own name.
	Export edata.Config
	Target coff.Target
	// SectionAlign is the section alignment in memory.
	SectionAlign uint32
	// FixPathMaxSize is the reserved size of patchable DLL names.
	FixPathMaxSize uint32
	// FixPath makes every imported DLL name patchable in place.
	FixPath bool
}

// DefaultOptions returns default linker configuration: an x64 image with
// page-aligned sections.
func DefaultOptions() Options {
	return Options{
		Target:         coff.NewTarget(coff.MachineAMD64),
		Export:         edata.DefaultConfig("a.dll"),
		SectionAlign:   0x1000,
		FixPathMaxSize: chunk.DefaultReservedSize,
	}
}

// Linker owns the arena and the builders of one image.
type Linker struct {
	arena   *chunk.Arena
	fixPath *fixpath.Registry
	imports *idata.Builder
	delay   *delayload.Builder
	exports *edata.Table
	image   *Image
	pending []edata.Export
	options Options
	phase   phase.Marker
}

// New creates a Linker. The target must be one the builders support.
func New(opts Options) (*Linker, error) {
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	if opts.SectionAlign == 0 {
		opts.SectionAlign = 0x1000
	}

	l := &Linker{
		arena:   chunk.NewArena(),
		options: opts,
		phase:   phase.New(errors.PhaseLayout),
	}

	var (
		iopts []idata.Option
		dopts []delayload.Option
	)
	if opts.FixPath {
		l.fixPath = fixpath.New(l.arena, fixpath.WithMaxSize(opts.FixPathMaxSize))
		iopts = append(iopts, idata.WithFixPath(l.fixPath))
		dopts = append(dopts, delayload.WithFixPath(l.fixPath))
	}
	l.imports = idata.New(l.arena, opts.Target, iopts...)
	l.delay = delayload.New(l.arena, opts.Target, dopts...)
	return l, nil
}

// Options returns the configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Arena returns the arena every chunk of the image lives in.
func (l *Linker) Arena() *chunk.Arena {
	return l.arena
}

// Imports returns the classic import builder.
func (l *Linker) Imports() *idata.Builder {
	return l.imports
}

// DelayImports returns the delay-load builder.
func (l *Linker) DelayImports() *delayload.Builder {
	return l.delay
}

// Exports returns the export table. It is nil until Build runs.
func (l *Linker) Exports() *edata.Table {
	return l.exports
}

// FixPath returns the fix-path registry, or nil when fix-path mode is off.
func (l *Linker) FixPath() *fixpath.Registry {
	return l.fixPath
}

// AddImport records a classic import.
func (l *Linker) AddImport(imp *dlltab.Import) error {
	if err := l.phase.Collecting("AddImport"); err != nil {
		return err
	}
	return l.imports.Add(imp)
}

// AddDelayImport records a delay-loaded import. Build skips an empty
// delay-load builder, so its own marker cannot catch a late call.
func (l *Linker) AddDelayImport(imp *dlltab.Import) error {
	if err := l.phase.Collecting("AddDelayImport"); err != nil {
		return err
	}
	return l.delay.Add(imp)
}

// AddExport records an export.
func (l *Linker) AddExport(e edata.Export) error {
	if err := l.phase.Collecting("AddExport"); err != nil {
		return err
	}
	l.pending = append(l.pending, e)
	return nil
}

// Build creates every table. helper is the resolved delay-load helper; it
// may be nil only when nothing is delay-loaded.
func (l *Linker) Build(helper dlltab.Defined) error {
	if err := l.phase.Collecting("Build"); err != nil {
		return err
	}

	if err := l.imports.Create(); err != nil {
		return stageError("imports", "", "", err)
	}
	if !l.delay.Empty() {
		if err := l.delay.Create(helper); err != nil {
			return stageError("delay-load imports", "", "", err)
		}
	}

	exports, err := edata.New(l.arena, l.options.Export, l.pending)
	if err != nil {
		return stageError("exports", l.options.Export.DLLName, "", err)
	}
	l.exports = exports

	if l.fixPath != nil {
		if _, err := l.fixPath.Create(); err != nil {
			return stageError("fix-path header", "", "", err)
		}
	}

	l.phase.Seal()
	Logger().Debug("tables built",
		zap.Int("chunks", l.arena.Len()),
		zap.Bool("delay", !l.delay.Empty()),
		zap.Bool("fixpath", l.fixPath != nil),
	)
	return nil
}
