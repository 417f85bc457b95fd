package linker

import (
	"go.uber.org/zap"

	"github.com/wippyai/dlltab/chunk"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/errors"
)

// ChunkInfo locates one chunk inside a section.
type ChunkInfo struct {
	Name string
	RVA  uint32
	Size uint32
}

// Section is one laid-out output section.
type Section struct {
	Name            string
	Data            []byte
	Chunks          []ChunkInfo
	RVA             uint32
	Characteristics uint32
}

// Size returns the virtual size of the section.
func (s *Section) Size() uint32 {
	return uint32(len(s.Data))
}

// Contains reports whether rva falls inside the section.
func (s *Section) Contains(rva uint32) bool {
	return rva >= s.RVA && rva-s.RVA < s.Size()
}

// Image is the laid-out result of a link.
type Image struct {
	Sections    []*Section
	BaseRelocs  []chunk.BaseReloc
	Directories [coff.NumDirectories]coff.DataDirectory
	Target      coff.Target
}

// Section returns the section called name.
func (img *Image) Section(name string) (*Section, bool) {
	for _, s := range img.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// ReadRVA returns n bytes at rva. The range must lie inside one section.
func (img *Image) ReadRVA(rva, n uint32) ([]byte, error) {
	for _, s := range img.Sections {
		if !s.Contains(rva) {
			continue
		}
		off := rva - s.RVA
		if uint64(off)+uint64(n) > uint64(s.Size()) {
			break
		}
		return s.Data[off : off+n], nil
	}
	return nil, errors.New(errors.PhaseLayout, errors.KindOutOfBounds).
		Value(rva).
		Detail("%d bytes at %#x are outside every section", n, rva).
		Build()
}

// Bytes returns the section data from rva to the end of its section.
func (img *Image) Bytes(rva uint32) ([]byte, error) {
	for _, s := range img.Sections {
		if s.Contains(rva) {
			return s.Data[rva-s.RVA:], nil
		}
	}
	return nil, errors.New(errors.PhaseLayout, errors.KindOutOfBounds).
		Value(rva).
		Detail("%#x is outside every section", rva).
		Build()
}

type sectionPlan struct {
	name  string
	flags uint32
	refs  []chunk.Ref
}

const (
	flagsCode   = coff.ScnCntCode | coff.ScnMemExecute | coff.ScnMemRead
	flagsRData  = coff.ScnCntInitData | coff.ScnMemRead
	flagsRWData = coff.ScnCntInitData | coff.ScnMemRead | coff.ScnMemWrite
)

func (l *Linker) plan() []sectionPlan {
	var rdata []chunk.Ref
	rdata = append(rdata, l.imports.Chunks()...)
	rdata = append(rdata, l.delay.Chunks()...)
	rdata = append(rdata, l.exports.Chunks()...)

	var fixPath []chunk.Ref
	if l.fixPath != nil {
		fixPath = l.fixPath.Chunks()
	}

	return []sectionPlan{
		{".text", flagsCode, l.delay.CodeChunks()},
		{".rdata", flagsRData, rdata},
		{".data", flagsRWData, l.delay.DataChunks()},
		{".pdata", flagsRData, l.delay.CodePData()},
		{".xdata", flagsRData, l.delay.CodeUnwindInfo()},
		{".fixpath", flagsRData, fixPath},
	}
}

// Layout places every non-empty section starting at start, each aligned to
// the section alignment, then serializes them. A .reloc section with the
// base relocation blocks follows the others. Layout runs once; later calls
// return the same image.
func (l *Linker) Layout(start uint32) (*Image, error) {
	if err := l.phase.Built("Layout"); err != nil {
		return nil, err
	}
	if l.image != nil {
		return l.image, nil
	}

	plans := l.plan()
	var (
		placed []sectionPlan
		rvas   []uint32
		all    []chunk.Ref
	)
	addr := start
	for _, p := range plans {
		if len(p.refs) == 0 {
			continue
		}
		addr = chunk.AlignTo(addr, l.options.SectionAlign)
		end, err := l.arena.Layout(addr, p.refs)
		if err != nil {
			return nil, stageError("layout", "", p.name, err)
		}
		placed = append(placed, p)
		rvas = append(rvas, addr)
		all = append(all, p.refs...)
		addr = end
	}

	relocs, err := l.arena.BaseRelocs(all)
	if err != nil {
		return nil, stageError("base relocations", "", "", err)
	}
	var relocRef chunk.Ref
	if len(relocs) > 0 {
		relocRef = l.arena.Add(newRelocTable(relocs))
		addr = chunk.AlignTo(addr, l.options.SectionAlign)
		if _, err := l.arena.Layout(addr, []chunk.Ref{relocRef}); err != nil {
			return nil, stageError("layout", "", ".reloc", err)
		}
		placed = append(placed, sectionPlan{".reloc", flagsRData | coff.ScnMemDiscardable, []chunk.Ref{relocRef}})
		rvas = append(rvas, addr)
	}

	img := &Image{Target: l.options.Target, BaseRelocs: relocs}
	for i, p := range placed {
		s, err := l.section(p, rvas[i])
		if err != nil {
			return nil, err
		}
		img.Sections = append(img.Sections, s)
		Logger().Debug("section placed",
			zap.String("name", s.Name),
			zap.Uint32("rva", s.RVA),
			zap.Uint32("size", s.Size()),
			zap.Int("chunks", len(s.Chunks)),
		)
	}

	if err := l.directories(img, relocRef, len(relocs) > 0); err != nil {
		return nil, stageError("data directories", "", "", err)
	}

	l.image = img
	return img, nil
}

func (l *Linker) section(p sectionPlan, rva uint32) (*Section, error) {
	data, err := l.arena.WriteAll(p.refs)
	if err != nil {
		return nil, stageError("write", "", p.name, err)
	}
	s := &Section{Name: p.name, RVA: rva, Data: data, Characteristics: p.flags}
	for _, ref := range p.refs {
		c, err := l.arena.Get(ref)
		if err != nil {
			return nil, err
		}
		crva, err := l.arena.RVA(ref)
		if err != nil {
			return nil, err
		}
		s.Chunks = append(s.Chunks, ChunkInfo{Name: c.Name(), RVA: crva, Size: c.Size()})
	}
	// Padding ahead of the first chunk belongs to the section.
	if len(s.Chunks) > 0 && s.Chunks[0].RVA != rva {
		pad := make([]byte, s.Chunks[0].RVA-rva)
		s.Data = append(pad, s.Data...)
	}
	return s, nil
}

func (l *Linker) directories(img *Image, relocRef chunk.Ref, haveRelocs bool) error {
	dirs := &img.Directories

	if !l.exports.Empty() {
		rva, err := l.exports.RVA()
		if err != nil {
			return err
		}
		size, err := l.exports.Size()
		if err != nil {
			return err
		}
		dirs[coff.DirExport] = coff.DataDirectory{RVA: rva, Size: size}
	}

	if !l.imports.Empty() {
		rva, err := l.imports.DirRVA()
		if err != nil {
			return err
		}
		size, err := l.imports.DirSize()
		if err != nil {
			return err
		}
		dirs[coff.DirImport] = coff.DataDirectory{RVA: rva, Size: size}

		if rva, err = l.imports.IATRVA(); err != nil {
			return err
		}
		if size, err = l.imports.IATSize(); err != nil {
			return err
		}
		dirs[coff.DirIAT] = coff.DataDirectory{RVA: rva, Size: size}
	}

	if !l.delay.Empty() {
		rva, err := l.delay.DirRVA()
		if err != nil {
			return err
		}
		size, err := l.delay.DirSize()
		if err != nil {
			return err
		}
		dirs[coff.DirDelayImport] = coff.DataDirectory{RVA: rva, Size: size}

		if pdata := l.delay.CodePData(); len(pdata) > 0 {
			rva, size, err := l.arena.Span(pdata)
			if err != nil {
				return err
			}
			dirs[coff.DirException] = coff.DataDirectory{RVA: rva, Size: size}
		}
	}

	if haveRelocs {
		rva, size, err := l.arena.Span([]chunk.Ref{relocRef})
		if err != nil {
			return err
		}
		dirs[coff.DirBaseReloc] = coff.DataDirectory{RVA: rva, Size: size}
	}
	return nil
}
