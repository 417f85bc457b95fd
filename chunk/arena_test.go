package chunk

import (
	"bytes"
	"errors"
	"testing"

	dlerrors "github.com/wippyai/dlltab/errors"
)

// refChunk writes the RVA of another chunk, like a directory entry does.
type refChunk struct {
	target Ref
}

func (r *refChunk) Name() string  { return "ref" }
func (r *refChunk) Size() uint32  { return 4 }
func (r *refChunk) Align() uint32 { return 4 }

func (r *refChunk) WriteTo(buf []byte, _ uint32, a *Arena) error {
	rva, err := a.RVA(r.target)
	if err != nil {
		return err
	}
	buf[0], buf[1], buf[2], buf[3] = byte(rva), byte(rva>>8), byte(rva>>16), byte(rva>>24)
	return nil
}

func (r *refChunk) BaseRelocs(rva uint32) []BaseReloc {
	return []BaseReloc{{RVA: rva, Type: 3}}
}

func TestArenaAddGet(t *testing.T) {
	a := NewArena()
	s := NewString("name", "USER32.dll")
	ref := a.Add(s)

	if ref != 0 {
		t.Errorf("first ref = %d, want 0", ref)
	}
	got, err := a.Get(ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different chunk")
	}
	if a.Len() != 1 {
		t.Errorf("Len() = %d, want 1", a.Len())
	}

	if _, err := a.Get(5); !errors.Is(err, dlerrors.ErrOutOfBounds) {
		t.Errorf("Get(5) = %v, want out of bounds", err)
	}
}

func TestArenaRVABeforeLayout(t *testing.T) {
	a := NewArena()
	ref := a.Add(NewNull("null", 8, 8))

	if a.Placed(ref) {
		t.Error("chunk placed before layout")
	}
	if _, err := a.RVA(ref); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("RVA before layout = %v, want precedence error", err)
	}
	if _, _, err := a.Span([]Ref{ref}); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("Span before layout = %v, want precedence error", err)
	}
}

func TestArenaLayoutAlignment(t *testing.T) {
	a := NewArena()
	s := a.Add(NewString("s", "ab"))
	n := a.Add(NewNull("n", 8, 8))
	b := a.Add(NewBlob("b", []byte{1}, 4))

	end, err := a.Layout(0x1001, []Ref{s, n, b})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}

	wants := map[Ref]uint32{s: 0x1001, n: 0x1008, b: 0x1010}
	for ref, want := range wants {
		got, err := a.RVA(ref)
		if err != nil {
			t.Fatalf("RVA(%d): %v", ref, err)
		}
		if got != want {
			t.Errorf("RVA(%d) = %#x, want %#x", ref, got, want)
		}
	}
	if end != 0x1011 {
		t.Errorf("end = %#x, want 0x1011", end)
	}

	rva, size, err := a.Span([]Ref{s, n, b})
	if err != nil {
		t.Fatalf("Span: %v", err)
	}
	if rva != 0x1001 || size != 0x10 {
		t.Errorf("Span = %#x+%#x, want 0x1001+0x10", rva, size)
	}
}

func TestArenaWriteResolvesReferences(t *testing.T) {
	a := NewArena()
	target := a.Add(NewString("target", "x"))
	ref := a.Add(&refChunk{target: target})

	if _, err := a.Write(ref); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("Write before layout = %v, want precedence error", err)
	}

	if _, err := a.Layout(0x2000, []Ref{target, ref}); err != nil {
		t.Fatalf("Layout: %v", err)
	}

	got, err := a.Write(ref)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x20, 0, 0}) {
		t.Errorf("Write = % x, want 00 20 00 00", got)
	}
}

func TestArenaWriteInto(t *testing.T) {
	a := NewArena()
	s := a.Add(NewString("s", "hi"))
	r := a.Add(&refChunk{target: s})
	if _, err := a.Layout(0x100, []Ref{s, r}); err != nil {
		t.Fatalf("Layout: %v", err)
	}

	buf := make([]byte, 8)
	if err := a.WriteInto(buf, 0x100, []Ref{s, r}); err != nil {
		t.Fatalf("WriteInto: %v", err)
	}
	want := []byte{'h', 'i', 0, 0, 0x00, 0x01, 0, 0}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = % x, want % x", buf, want)
	}

	all, err := a.WriteAll([]Ref{s, r})
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if !bytes.Equal(all, want) {
		t.Errorf("WriteAll = % x, want % x", all, want)
	}

	if err := a.WriteInto(make([]byte, 4), 0x100, []Ref{r}); !errors.Is(err, dlerrors.ErrOutOfBounds) {
		t.Errorf("WriteInto small buffer = %v, want out of bounds", err)
	}
}

func TestArenaBaseRelocsSorted(t *testing.T) {
	a := NewArena()
	s := a.Add(NewString("s", "x"))
	r1 := a.Add(&refChunk{target: s})
	r2 := a.Add(&refChunk{target: s})
	if err := a.Place(s, 0x10); err != nil {
		t.Fatal(err)
	}
	if err := a.Place(r1, 0x40); err != nil {
		t.Fatal(err)
	}
	if err := a.Place(r2, 0x20); err != nil {
		t.Fatal(err)
	}

	relocs, err := a.BaseRelocs([]Ref{s, r1, r2})
	if err != nil {
		t.Fatalf("BaseRelocs: %v", err)
	}
	if len(relocs) != 2 {
		t.Fatalf("len(relocs) = %d, want 2", len(relocs))
	}
	if relocs[0].RVA != 0x20 || relocs[1].RVA != 0x40 {
		t.Errorf("relocs = %+v, want sorted 0x20, 0x40", relocs)
	}
}

func TestSymbolRVA(t *testing.T) {
	a := NewArena()
	ref := a.Add(NewBlob("code", make([]byte, 16), 16))
	sym := Symbol{Arena: a, Label: "helper", Ref: ref, Offset: 4}

	if _, err := sym.RVA(); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("RVA before layout = %v, want precedence error", err)
	}
	if err := a.Place(ref, 0x3000); err != nil {
		t.Fatal(err)
	}
	rva, err := sym.RVA()
	if err != nil {
		t.Fatalf("RVA: %v", err)
	}
	if rva != 0x3004 {
		t.Errorf("RVA = %#x, want 0x3004", rva)
	}
	if sym.Name() != "helper" {
		t.Errorf("Name() = %q", sym.Name())
	}
}

func TestAlignTo(t *testing.T) {
	tests := []struct{ v, align, want uint32 }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 4, 12},
		{7, 0, 7},
		{7, 1, 7},
	}
	for _, tt := range tests {
		if got := AlignTo(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}
