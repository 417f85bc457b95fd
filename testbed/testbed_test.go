package testbed

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/edata"
	"github.com/wippyai/dlltab/inspect"
	"github.com/wippyai/dlltab/linker"
)

var helper = dlltab.Fixed{Sym: "__delayLoadHelper2", Addr: 0x800}

// library links MATH.dll, which exports by name and by ordinal only.
func library(t *testing.T) *linker.Image {
	t.Helper()
	opts := linker.DefaultOptions()
	opts.Export = edata.DefaultConfig("MATH.dll")
	opts.Target.ImageBase = 0x180000000
	l, err := linker.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	exports := []edata.Export{
		{Name: "Add", Target: dlltab.Fixed{Sym: "Add", Addr: 0x1100}},
		{Name: "Sub", Target: dlltab.Fixed{Sym: "Sub", Addr: 0x1200}},
		{Name: "Mul", Target: dlltab.Fixed{Sym: "Mul", Addr: 0x1300}},
		{Ordinal: 10, NoName: true, Target: dlltab.Fixed{Sym: "Div", Addr: 0x1400}},
	}
	for _, e := range exports {
		if err := l.AddExport(e); err != nil {
			t.Fatalf("AddExport: %v", err)
		}
	}
	if err := l.Build(nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := l.Layout(0x1000)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	return img
}

// linkClient links an image importing from MATH.dll, both directly and
// delayed.
func linkClient() (*linker.Image, error) {
	l, err := linker.New(linker.DefaultOptions())
	if err != nil {
		return nil, err
	}
	imports := []*dlltab.Import{
		// Add sorts first, so hint 0 is exact.
		{DLL: "math.dll", Name: "Add", Hint: 0},
		// A stale hint makes the loader fall back to a search.
		{DLL: "MATH.DLL", Name: "Sub", Hint: 0},
		{DLL: "MATH.dll", Kind: dlltab.ImportByOrdinal, Ordinal: 10},
	}
	for _, imp := range imports {
		if err := l.AddImport(imp); err != nil {
			return nil, err
		}
	}
	if err := l.AddDelayImport(&dlltab.Import{DLL: "MATH.dll", Name: "Mul", Hint: 1}); err != nil {
		return nil, err
	}
	if err := l.Build(helper); err != nil {
		return nil, err
	}
	return l.Layout(0x1000)
}

func client(t *testing.T) *linker.Image {
	t.Helper()
	img, err := linkClient()
	if err != nil {
		t.Fatalf("link client: %v", err)
	}
	return img
}

// resolve looks a symbol up in an export table the way the loader does:
// the hint first, then a binary search by name.
func resolve(tab *inspect.ExportTable, s inspect.Symbol) (inspect.Export, bool) {
	if s.ByOrdinal {
		for _, e := range tab.Exports {
			if e.Ordinal == s.Ordinal {
				return e, true
			}
		}
		return inspect.Export{}, false
	}
	names := tab.Names()
	if int(s.Hint) < len(names) && names[s.Hint] == s.Name {
		return tab.Find(names[s.Hint])
	}
	return tab.Find(s.Name)
}

// ripTarget resolves a RIP-relative operand; x86asm zero-extends the 32-bit
// displacement.
func ripTarget(next int64, mem x86asm.Mem) int64 {
	return next + int64(int32(mem.Disp))
}

func TestLoaderBindsImports(t *testing.T) {
	lib := library(t)
	app := client(t)

	tab, err := inspect.New(lib, lib.Target).Exports(lib.Directories[coff.DirExport])
	if err != nil {
		t.Fatalf("Exports: %v", err)
	}
	dlls, err := inspect.New(app, app.Target).Imports(app.Directories[coff.DirImport])
	if err != nil {
		t.Fatalf("Imports: %v", err)
	}
	if len(dlls) != 1 || dlls[0].Name != "math.dll" {
		t.Fatalf("import dlls = %+v, want one math.dll", dlls)
	}

	want := map[string]uint32{"Add": 0x1100, "Sub": 0x1200, "#10": 0x1400}
	for _, s := range dlls[0].Symbols {
		label := s.Name
		if s.ByOrdinal {
			label = "#10"
		}
		e, ok := resolve(tab, s)
		if !ok {
			t.Errorf("%s does not resolve against %s", label, tab.DLLName)
			continue
		}
		if e.RVA != want[label] {
			t.Errorf("%s bound to %#x, want %#x", label, e.RVA, want[label])
		}
	}
}

func TestDelayLoadCallChain(t *testing.T) {
	app := client(t)
	dec := inspect.New(app, app.Target)

	dir := app.Directories[coff.DirDelayImport]
	dlls, err := dec.DelayImports(dir)
	if err != nil {
		t.Fatalf("DelayImports: %v", err)
	}
	if len(dlls) != 1 || len(dlls[0].Symbols) != 1 {
		t.Fatalf("delay imports = %+v, want one symbol", dlls)
	}
	sym := dlls[0].Symbols[0]

	// slot -> thunk: lea rax, [slot]; jmp tail-merge
	thunk, err := app.ReadRVA(sym.Thunk, 12)
	if err != nil {
		t.Fatalf("ReadRVA thunk: %v", err)
	}
	lea, err := x86asm.Decode(thunk, 64)
	if err != nil {
		t.Fatalf("decode lea: %v", err)
	}
	pc := int64(sym.Thunk) + int64(lea.Len)
	if got := ripTarget(pc, lea.Args[1].(x86asm.Mem)); got != int64(sym.Slot) {
		t.Errorf("thunk loads %#x, want slot %#x", got, sym.Slot)
	}
	jmp, err := x86asm.Decode(thunk[lea.Len:], 64)
	if err != nil {
		t.Fatalf("decode jmp: %v", err)
	}
	tailMerge := uint32(pc + int64(jmp.Len) + int64(jmp.Args[0].(x86asm.Rel)))

	// tail-merge -> helper(descriptor)
	code, err := app.Bytes(tailMerge)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	var desc, call int64
	pc = int64(tailMerge)
	for off := 0; off < len(code) && call == 0; {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			t.Fatalf("decode tail-merge at %#x: %v", pc, err)
		}
		next := pc + int64(inst.Len)
		switch inst.Op {
		case x86asm.LEA:
			desc = ripTarget(next, inst.Args[1].(x86asm.Mem))
		case x86asm.CALL:
			call = next + int64(inst.Args[0].(x86asm.Rel))
		}
		off += inst.Len
		pc = next
	}
	if desc != int64(dir.RVA) {
		t.Errorf("tail-merge passes descriptor %#x, want %#x", desc, dir.RVA)
	}
	if call != int64(helper.Addr) {
		t.Errorf("tail-merge calls %#x, want helper %#x", call, helper.Addr)
	}

	// Before the first call the slot holds the thunk VA.
	slot, err := app.ReadRVA(sym.Slot, 8)
	if err != nil {
		t.Fatalf("ReadRVA slot: %v", err)
	}
	if got := binary.LittleEndian.Uint64(slot); got != app.Target.ImageBase+uint64(sym.Thunk) {
		t.Errorf("slot = %#x, want thunk VA %#x", got, app.Target.ImageBase+uint64(sym.Thunk))
	}
}

func TestConcurrentLinksAgree(t *testing.T) {
	const workers = 8
	images := make([]*linker.Image, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			images[i], errs[i] = linkClient()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("link %d: %v", i, err)
		}
	}

	for i := 1; i < workers; i++ {
		if len(images[i].Sections) != len(images[0].Sections) {
			t.Fatalf("link %d has %d sections, want %d", i, len(images[i].Sections), len(images[0].Sections))
		}
		for j, s := range images[i].Sections {
			if !bytes.Equal(s.Data, images[0].Sections[j].Data) {
				t.Errorf("link %d: section %s differs", i, s.Name)
			}
		}
	}
}
