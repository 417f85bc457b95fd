package inspect

import (
	"errors"
	"testing"

	"github.com/wippyai/dlltab"
	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/edata"
	ibin "github.com/wippyai/dlltab/internal/binary"
	"github.com/wippyai/dlltab/linker"
)

func build(t *testing.T, opts linker.Options) *linker.Image {
	t.Helper()
	l, err := linker.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	imports := []*dlltab.Import{
		{DLL: "KERNEL32.dll", Name: "ExitProcess", Hint: 0x15e},
		{DLL: "kernel32.DLL", Name: "GetLastError", Hint: 2},
		{DLL: "WS2_32.dll", Kind: dlltab.ImportByOrdinal, Ordinal: 23},
	}
	for _, imp := range imports {
		if err := l.AddImport(imp); err != nil {
			t.Fatalf("AddImport: %v", err)
		}
	}
	delayed := []*dlltab.Import{
		{DLL: "USER32.dll", Name: "MessageBoxW", Hint: 4},
		{DLL: "USER32.dll", Kind: dlltab.ImportByOrdinal, Ordinal: 9},
		{DLL: "SHELL32.dll", Name: "ShellExecuteW"},
	}
	for _, imp := range delayed {
		if err := l.AddDelayImport(imp); err != nil {
			t.Fatalf("AddDelayImport: %v", err)
		}
	}
	exports := []edata.Export{
		{Name: "Start", Target: dlltab.Fixed{Sym: "Start", Addr: 0x900}},
		{Name: "Stop", Ordinal: 7, Target: dlltab.Fixed{Sym: "Stop", Addr: 0x940}},
		{Name: "Alloc", Forward: "NTDLL.RtlAllocateHeap"},
		{Ordinal: 3, NoName: true, Target: dlltab.Fixed{Sym: "hidden", Addr: 0x980}},
	}
	for _, e := range exports {
		if err := l.AddExport(e); err != nil {
			t.Fatalf("AddExport: %v", err)
		}
	}
	if err := l.Build(dlltab.Fixed{Sym: "__delayLoadHelper2", Addr: 0x800}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := l.Layout(0x1000)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	return img
}

func TestImports(t *testing.T) {
	img := build(t, linker.DefaultOptions())
	dlls, err := New(img, img.Target).Imports(img.Directories[coff.DirImport])
	if err != nil {
		t.Fatalf("Imports: %v", err)
	}
	if len(dlls) != 2 {
		t.Fatalf("got %d dlls, want 2", len(dlls))
	}
	if dlls[0].Name != "KERNEL32.dll" || dlls[1].Name != "WS2_32.dll" {
		t.Errorf("dlls = %s, %s", dlls[0].Name, dlls[1].Name)
	}

	k := dlls[0].Symbols
	if len(k) != 2 {
		t.Fatalf("KERNEL32 symbols = %d, want 2", len(k))
	}
	if k[0].Name != "ExitProcess" || k[0].Hint != 0x15e {
		t.Errorf("first symbol = %s/%#x, want ExitProcess/0x15e", k[0].Name, k[0].Hint)
	}
	if k[1].Name != "GetLastError" || k[1].Hint != 2 {
		t.Errorf("second symbol = %s/%d, want GetLastError/2", k[1].Name, k[1].Hint)
	}
	if k[1].Slot != k[0].Slot+8 {
		t.Errorf("slots %#x, %#x are not adjacent words", k[0].Slot, k[1].Slot)
	}

	w := dlls[1].Symbols
	if len(w) != 1 || !w[0].ByOrdinal || w[0].Ordinal != 23 {
		t.Fatalf("WS2_32 symbols = %+v, want ordinal 23", w)
	}
	if w[0].Value != coff.OrdinalFlag64|23 {
		t.Errorf("IAT value = %#x, want ordinal flag|23", w[0].Value)
	}
}

func TestImportAddressTableMirrorsLookup(t *testing.T) {
	img := build(t, linker.DefaultOptions())
	d := New(img, img.Target)
	dlls, err := d.Imports(img.Directories[coff.DirImport])
	if err != nil {
		t.Fatalf("Imports: %v", err)
	}
	iat := img.Directories[coff.DirIAT]
	for _, dll := range dlls {
		for _, s := range dll.Symbols {
			if s.Slot < iat.RVA || s.Slot >= iat.RVA+iat.Size {
				t.Errorf("%s slot %#x outside IAT directory", s.Name, s.Slot)
			}
			if s.ByOrdinal {
				continue
			}
			// Before binding the slot holds the hint/name RVA.
			hint, err := img.ReadRVA(uint32(s.Value), 2)
			if err != nil {
				t.Fatalf("ReadRVA: %v", err)
			}
			if got := uint16(hint[0]) | uint16(hint[1])<<8; got != s.Hint {
				t.Errorf("%s IAT hint = %d, want %d", s.Name, got, s.Hint)
			}
		}
	}
}

func TestDelayImports(t *testing.T) {
	tests := []struct {
		name    string
		machine coff.Machine
	}{
		{"amd64", coff.MachineAMD64},
		{"i386", coff.MachineI386},
		{"arm64", coff.MachineARM64},
		{"armnt", coff.MachineARMNT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := linker.DefaultOptions()
			opts.Target = coff.NewTarget(tt.machine)
			img := build(t, opts)

			dlls, err := New(img, img.Target).DelayImports(img.Directories[coff.DirDelayImport])
			if err != nil {
				t.Fatalf("DelayImports: %v", err)
			}
			if len(dlls) != 2 {
				t.Fatalf("got %d dlls, want 2", len(dlls))
			}
			text, ok := img.Section(".text")
			if !ok {
				t.Fatal("no .text section")
			}
			data, ok := img.Section(".data")
			if !ok {
				t.Fatal("no .data section")
			}

			u := dlls[0]
			if u.Name != "USER32.dll" || u.Attributes != coff.DelayAttrRVA {
				t.Errorf("descriptor = %s/%d, want USER32.dll/1", u.Name, u.Attributes)
			}
			if !data.Contains(u.ModuleHandle) || !data.Contains(u.Address) {
				t.Errorf("handle %#x or IAT %#x not in .data", u.ModuleHandle, u.Address)
			}
			if len(u.Symbols) != 2 {
				t.Fatalf("USER32 symbols = %d, want 2", len(u.Symbols))
			}
			if u.Symbols[0].Name != "MessageBoxW" || u.Symbols[0].Hint != 4 {
				t.Errorf("first = %s/%d, want MessageBoxW/4", u.Symbols[0].Name, u.Symbols[0].Hint)
			}
			if !u.Symbols[1].ByOrdinal || u.Symbols[1].Ordinal != 9 {
				t.Errorf("second = %+v, want ordinal 9", u.Symbols[1].Symbol)
			}
			for _, dll := range dlls {
				for _, s := range dll.Symbols {
					if !text.Contains(s.Thunk) {
						t.Errorf("%s thunk %#x not in .text", s.Name, s.Thunk)
					}
				}
			}
			if u.Symbols[0].Thunk == u.Symbols[1].Thunk {
				t.Error("two imports share one thunk")
			}
			if dlls[1].Name != "SHELL32.dll" {
				t.Errorf("second dll = %s, want SHELL32.dll", dlls[1].Name)
			}
		})
	}
}

func TestExports(t *testing.T) {
	img := build(t, linker.DefaultOptions())
	tab, err := New(img, img.Target).Exports(img.Directories[coff.DirExport])
	if err != nil {
		t.Fatalf("Exports: %v", err)
	}
	if tab.DLLName != "a.dll" {
		t.Errorf("DLLName = %q, want a.dll", tab.DLLName)
	}
	if tab.Base != 1 {
		t.Errorf("Base = %d, want 1", tab.Base)
	}

	wantNames := []string{"Alloc", "Start", "Stop"}
	names := tab.Names()
	if len(names) != len(wantNames) {
		t.Fatalf("Names = %v, want %v", names, wantNames)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}

	tests := []struct {
		name    string
		ordinal uint16
		rva     uint32
		forward string
	}{
		{"Stop", 7, 0x940, ""},
		{"Start", 8, 0x900, ""},
		{"Alloc", 9, 0, "NTDLL.RtlAllocateHeap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := tab.Find(tt.name)
			if !ok {
				t.Fatalf("Find(%q) failed", tt.name)
			}
			if e.Ordinal != tt.ordinal {
				t.Errorf("Ordinal = %d, want %d", e.Ordinal, tt.ordinal)
			}
			if e.Forward != tt.forward {
				t.Errorf("Forward = %q, want %q", e.Forward, tt.forward)
			}
			if tt.forward == "" && e.RVA != tt.rva {
				t.Errorf("RVA = %#x, want %#x", e.RVA, tt.rva)
			}
		})
	}

	if _, ok := tab.Find("Missing"); ok {
		t.Error("Find(Missing) succeeded")
	}

	var hidden *Export
	for i := range tab.Exports {
		if tab.Exports[i].Ordinal == 3 {
			hidden = &tab.Exports[i]
		}
	}
	if hidden == nil || hidden.Name != "" || hidden.RVA != 0x980 {
		t.Errorf("ordinal 3 = %+v, want unnamed slot at 0x980", hidden)
	}
}

func TestFixPath(t *testing.T) {
	opts := linker.DefaultOptions()
	opts.FixPath = true
	img := build(t, opts)

	s, ok := img.Section(".fixpath")
	if !ok {
		t.Fatal("no .fixpath section")
	}
	h, err := New(img, img.Target).FixPath(s.RVA)
	if err != nil {
		t.Fatalf("FixPath: %v", err)
	}
	if h.Version != 2 || h.MaxSize != 301 {
		t.Errorf("header = %d/%d, want 2/301", h.Version, h.MaxSize)
	}
	wantIData := []string{"KERNEL32.dll", "WS2_32.dll"}
	wantDelay := []string{"USER32.dll", "SHELL32.dll"}
	check := func(what string, got, want []string) {
		if len(got) != len(want) {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %q, want %q", what, i, got[i], want[i])
			}
		}
	}
	check("Names", h.Names, wantIData)
	check("DelayNames", h.DelayNames, wantDelay)

	// Import directory name fields point at the reserved slots.
	dlls, err := New(img, img.Target).Imports(img.Directories[coff.DirImport])
	if err != nil {
		t.Fatalf("Imports: %v", err)
	}
	for i, dll := range dlls {
		if dll.NameRVA != h.IData[i] {
			t.Errorf("%s name at %#x, want reserved slot %#x", dll.Name, dll.NameRVA, h.IData[i])
		}
	}
}

func TestBaseRelocsMatchImage(t *testing.T) {
	for _, m := range []coff.Machine{coff.MachineAMD64, coff.MachineI386, coff.MachineARMNT} {
		t.Run(m.String(), func(t *testing.T) {
			opts := linker.DefaultOptions()
			opts.Target = coff.NewTarget(m)
			img := build(t, opts)

			relocs, err := New(img, img.Target).BaseRelocs(img.Directories[coff.DirBaseReloc])
			if err != nil {
				t.Fatalf("BaseRelocs: %v", err)
			}
			if len(relocs) != len(img.BaseRelocs) {
				t.Fatalf("decoded %d relocs, want %d", len(relocs), len(img.BaseRelocs))
			}
			for i, r := range relocs {
				want := img.BaseRelocs[i]
				if r.RVA != want.RVA || r.Type != want.Type {
					t.Errorf("reloc %d = %#x/%d, want %#x/%d", i, r.RVA, r.Type, want.RVA, want.Type)
				}
			}
		})
	}
}

func TestRuntimeFunctions(t *testing.T) {
	img := build(t, linker.DefaultOptions())
	fns, err := New(img, img.Target).RuntimeFunctions(img.Directories[coff.DirException])
	if err != nil {
		t.Fatalf("RuntimeFunctions: %v", err)
	}
	// One record for each DLL's thunks and one for its tail-merge.
	if len(fns) != 4 {
		t.Fatalf("got %d records, want 4", len(fns))
	}
	text, _ := img.Section(".text")
	xdata, _ := img.Section(".xdata")
	for i, f := range fns {
		if f.Begin >= f.End {
			t.Errorf("record %d: begin %#x >= end %#x", i, f.Begin, f.End)
		}
		if !text.Contains(f.Begin) || !text.Contains(f.End-1) {
			t.Errorf("record %d: [%#x, %#x) outside .text", i, f.Begin, f.End)
		}
		if !xdata.Contains(f.Unwind) {
			t.Errorf("record %d: unwind %#x outside .xdata", i, f.Unwind)
		}
	}
}

func TestEmptyDirectories(t *testing.T) {
	l, err := linker.New(linker.DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.AddImport(&dlltab.Import{DLL: "A.dll", Name: "f"}); err != nil {
		t.Fatalf("AddImport: %v", err)
	}
	if err := l.Build(nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := l.Layout(0x1000)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	d := New(img, img.Target)

	delay, err := d.DelayImports(img.Directories[coff.DirDelayImport])
	if err != nil || delay != nil {
		t.Errorf("DelayImports = %v, %v, want nil", delay, err)
	}
	exports, err := d.Exports(img.Directories[coff.DirExport])
	if err != nil || exports != nil {
		t.Errorf("Exports = %v, %v, want nil", exports, err)
	}
	fns, err := d.RuntimeFunctions(img.Directories[coff.DirException])
	if err != nil || fns != nil {
		t.Errorf("RuntimeFunctions = %v, %v, want nil", fns, err)
	}
}

func TestOutOfRange(t *testing.T) {
	img := build(t, linker.DefaultOptions())
	d := New(img, img.Target)
	_, err := d.Imports(coff.DataDirectory{RVA: 0x7fff0000, Size: 40})
	var perr *ibin.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Imports = %v, want ParseError", err)
	}
	if perr.Table != "import directory" {
		t.Errorf("Table = %q, want import directory", perr.Table)
	}
}
