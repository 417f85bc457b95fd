package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/wippyai/dlltab/coff"
	"github.com/wippyai/dlltab/inspect"
	"github.com/wippyai/dlltab/linker"
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	addrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var directoryNames = [coff.NumDirectories]string{
	coff.DirExport:      "EXPORT",
	coff.DirImport:      "IMPORT",
	coff.DirException:   "EXCEPTION",
	coff.DirBaseReloc:   "BASERELOC",
	coff.DirIAT:         "IAT",
	coff.DirDelayImport: "DELAY_IMPORT",
}

// report renders a laid-out image as text. Styling is only applied when the
// output is a terminal.
type report struct {
	img    *linker.Image
	dec    *inspect.Decoder
	styled bool
}

func newReport(img *linker.Image, styled bool) *report {
	return &report{img: img, dec: inspect.New(img, img.Target), styled: styled}
}

func (r *report) render(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *report) heading(b *strings.Builder, title string) {
	b.WriteString("\n")
	b.WriteString(r.render(headingStyle, title))
	b.WriteString("\n")
}

func (r *report) write(w io.Writer, disasm bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s, image base %#x\n", r.img.Target.Machine, r.img.Target.ImageBase)

	r.sections(&b)
	r.directories(&b)
	steps := []func(*strings.Builder) error{r.imports, r.delayImports, r.exports, r.fixPath}
	if disasm {
		steps = append(steps, r.disassembly)
	}
	for _, step := range steps {
		if err := step(&b); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *report) sections(b *strings.Builder) {
	r.heading(b, "Sections")
	for _, s := range r.img.Sections {
		fmt.Fprintf(b, "%s %s size %#x flags %#08x\n",
			r.render(sectionStyle, fmt.Sprintf("%-9s", s.Name)),
			r.render(addrStyle, fmt.Sprintf("%#08x", s.RVA)),
			s.Size(), s.Characteristics)
		for _, c := range s.Chunks {
			fmt.Fprintf(b, "  %s %6d  %s\n",
				r.render(addrStyle, fmt.Sprintf("%#08x", c.RVA)), c.Size,
				r.render(nameStyle, c.Name))
		}
	}
}

func (r *report) directories(b *strings.Builder) {
	r.heading(b, "Data directories")
	for i, d := range r.img.Directories {
		if d.RVA == 0 {
			continue
		}
		fmt.Fprintf(b, "%-13s %s size %#x\n", directoryNames[i],
			r.render(addrStyle, fmt.Sprintf("%#08x", d.RVA)), d.Size)
	}
	if n := len(r.img.BaseRelocs); n > 0 {
		fmt.Fprintf(b, "%d base relocations\n", n)
	}
}

func (r *report) symbol(s inspect.Symbol) string {
	if s.ByOrdinal {
		return fmt.Sprintf("#%d", s.Ordinal)
	}
	return fmt.Sprintf("%s (hint %d)", r.render(nameStyle, s.Name), s.Hint)
}

func (r *report) imports(b *strings.Builder) error {
	dlls, err := r.dec.Imports(r.img.Directories[coff.DirImport])
	if err != nil || len(dlls) == 0 {
		return err
	}
	r.heading(b, "Imports")
	for _, dll := range dlls {
		fmt.Fprintf(b, "%s\n", r.render(sectionStyle, dll.Name))
		for _, s := range dll.Symbols {
			fmt.Fprintf(b, "  %s %s\n", r.render(addrStyle, fmt.Sprintf("%#08x", s.Slot)), r.symbol(s))
		}
	}
	return nil
}

func (r *report) delayImports(b *strings.Builder) error {
	dlls, err := r.dec.DelayImports(r.img.Directories[coff.DirDelayImport])
	if err != nil || len(dlls) == 0 {
		return err
	}
	r.heading(b, "Delay imports")
	for _, dll := range dlls {
		fmt.Fprintf(b, "%s handle %#x\n", r.render(sectionStyle, dll.Name), dll.ModuleHandle)
		for _, s := range dll.Symbols {
			fmt.Fprintf(b, "  %s %s -> thunk %#x\n",
				r.render(addrStyle, fmt.Sprintf("%#08x", s.Slot)), r.symbol(s.Symbol), s.Thunk)
		}
	}
	return nil
}

func (r *report) exports(b *strings.Builder) error {
	tab, err := r.dec.Exports(r.img.Directories[coff.DirExport])
	if err != nil || tab == nil {
		return err
	}
	r.heading(b, "Exports of "+tab.DLLName)
	for _, e := range tab.Exports {
		name := e.Name
		if name == "" {
			name = "[noname]"
		}
		target := fmt.Sprintf("%#x", e.RVA)
		if e.Forward != "" {
			target = "-> " + e.Forward
		}
		fmt.Fprintf(b, "  %5d %s %s\n", e.Ordinal, r.render(nameStyle, name), target)
	}
	return nil
}

func (r *report) fixPath(b *strings.Builder) error {
	s, ok := r.img.Section(".fixpath")
	if !ok {
		return nil
	}
	h, err := r.dec.FixPath(s.RVA)
	if err != nil {
		return err
	}
	r.heading(b, "Patchable DLL names")
	fmt.Fprintf(b, "version %d, %d bytes each\n", h.Version, h.MaxSize)
	for i, name := range h.Names {
		fmt.Fprintf(b, "  %s %s\n", r.render(addrStyle, fmt.Sprintf("%#08x", h.IData[i])), name)
	}
	for i, name := range h.DelayNames {
		fmt.Fprintf(b, "  %s %s (delay)\n", r.render(addrStyle, fmt.Sprintf("%#08x", h.DelayIData[i])), name)
	}
	return nil
}

func (r *report) disassembly(b *strings.Builder) error {
	text, ok := r.img.Section(".text")
	if !ok {
		return nil
	}
	r.heading(b, "Disassembly")
	for _, c := range text.Chunks {
		code, err := r.img.ReadRVA(c.RVA, c.Size)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s:\n", r.render(nameStyle, c.Name))
		for _, line := range disassemble(r.img.Target, code, c.RVA) {
			fmt.Fprintf(b, "  %s\n", line)
		}
	}
	return nil
}

// disassemble decodes code placed at rva. Thumb-2 has no decoder in x/arch,
// so ARMNT code is listed as halfwords.
func disassemble(t coff.Target, code []byte, rva uint32) []string {
	var lines []string
	switch t.Machine {
	case coff.MachineAMD64, coff.MachineI386:
		mode := 32
		if t.Is64() {
			mode = 64
		}
		for off := 0; off < len(code); {
			pc := t.ImageBase + uint64(rva) + uint64(off)
			inst, err := x86asm.Decode(code[off:], mode)
			if err != nil {
				lines = append(lines, fmt.Sprintf("%#x: .byte %#02x", pc, code[off]))
				off++
				continue
			}
			lines = append(lines, fmt.Sprintf("%#x: %s", pc, x86asm.IntelSyntax(inst, pc, nil)))
			off += inst.Len
		}
	case coff.MachineARM64:
		for off := 0; off+4 <= len(code); off += 4 {
			pc := t.ImageBase + uint64(rva) + uint64(off)
			inst, err := arm64asm.Decode(code[off : off+4])
			if err != nil {
				lines = append(lines, fmt.Sprintf("%#x: .word %#08x", pc, binary.LittleEndian.Uint32(code[off:])))
				continue
			}
			lines = append(lines, fmt.Sprintf("%#x: %s", pc, arm64asm.GNUSyntax(inst)))
		}
	default:
		for off := 0; off+2 <= len(code); off += 2 {
			pc := t.ImageBase + uint64(rva) + uint64(off)
			lines = append(lines, fmt.Sprintf("%#x: %04x", pc, binary.LittleEndian.Uint16(code[off:])))
		}
	}
	return lines
}
