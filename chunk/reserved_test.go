package chunk

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	dlerrors "github.com/wippyai/dlltab/errors"
)

func TestReservedStringSize(t *testing.T) {
	r, err := NewReservedString("dll", "KERNEL32.dll", DefaultReservedSize)
	if err != nil {
		t.Fatalf("NewReservedString: %v", err)
	}
	if r.Size() != 301 {
		t.Errorf("Size() = %d, want 301", r.Size())
	}
	if r.Value() != "KERNEL32.dll" {
		t.Errorf("Value() = %q", r.Value())
	}
}

func TestReservedStringWritePads(t *testing.T) {
	r, err := NewReservedString("dll", "a.dll", 16)
	if err != nil {
		t.Fatalf("NewReservedString: %v", err)
	}

	buf := bytes.Repeat([]byte{0xCC}, 16)
	if err := r.WriteTo(buf, 0, nil); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	want := append([]byte("a.dll"), make([]byte, 11)...)
	if !bytes.Equal(buf, want) {
		t.Errorf("WriteTo = % x, want % x", buf, want)
	}
}

func TestReservedStringTooLong(t *testing.T) {
	long := strings.Repeat("x", 302)
	_, err := NewReservedString("dll", long, DefaultReservedSize)
	if !errors.Is(err, dlerrors.ErrConfiguration) {
		t.Fatalf("NewReservedString(302 bytes) = %v, want configuration error", err)
	}

	var e *dlerrors.Error
	if !errors.As(err, &e) || e.Phase != dlerrors.PhaseFixPath {
		t.Errorf("error phase = %v, want fixpath", err)
	}

	if _, err := NewReservedString("dll", long[:301], DefaultReservedSize); err != nil {
		t.Errorf("name of exactly the reserved size rejected: %v", err)
	}
}

func TestStringChunk(t *testing.T) {
	s := NewString("name", "Sleep")
	if s.Size() != 6 {
		t.Errorf("Size() = %d, want 6", s.Size())
	}
	buf := make([]byte, s.Size())
	if err := s.WriteTo(buf, 0, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("Sleep\x00")) {
		t.Errorf("WriteTo = %q", buf)
	}
}
