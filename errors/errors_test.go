package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseDelayLoad,
				Kind:   KindConfiguration,
				DLL:    "USER32.dll",
				Symbol: "MessageBoxW",
				Detail: "helper missing",
			},
			contains: []string{"[delayload]", "configuration", "USER32.dll!MessageBoxW", "helper missing"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseImport,
				Kind:  KindPrecedence,
			},
			contains: []string{"[import]", "precedence"},
		},
		{
			name: "dll only",
			err: &Error{
				Phase: PhaseFixPath,
				Kind:  KindConfiguration,
				DLL:   "KERNEL32.dll",
			},
			contains: []string{"at KERNEL32.dll"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseWrite,
				Kind:   KindPrecedence,
				Detail: "not placed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[write]", "precedence", "not placed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLayout,
		Kind:  KindInvalidInput,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseExport,
		Kind:   KindOrdinalCollision,
		Symbol: "foo",
	}

	if !err.Is(&Error{Phase: PhaseExport, Kind: KindOrdinalCollision}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseImport, Kind: KindOrdinalCollision}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseExport, Kind: KindPrecedence}) {
		t.Error("Is should not match different kind")
	}

	if !errors.Is(err, ErrOrdinalCollision) {
		t.Error("errors.Is should match the phase-less sentinel")
	}

	if errors.Is(err, ErrConfiguration) {
		t.Error("errors.Is should not match a sentinel of another kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseExport, KindOrdinalCollision).
		DLL("mylib.dll").
		Symbol("Create").
		Value(uint16(7)).
		Cause(cause).
		Detail("ordinal %d used by %s", 7, "Destroy").
		Build()

	if err.Phase != PhaseExport {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseExport)
	}
	if err.Kind != KindOrdinalCollision {
		t.Errorf("Kind = %v, want %v", err.Kind, KindOrdinalCollision)
	}
	if err.DLL != "mylib.dll" {
		t.Errorf("DLL = %q, want 'mylib.dll'", err.DLL)
	}
	if err.Symbol != "Create" {
		t.Errorf("Symbol = %q, want 'Create'", err.Symbol)
	}
	if err.Value != uint16(7) {
		t.Errorf("Value = %v, want 7", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "ordinal 7 used by Destroy" {
		t.Errorf("Detail = %q, want 'ordinal 7 used by Destroy'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Configuration", func(t *testing.T) {
		err := Configuration(PhaseFixPath, "name too long")
		if err.Kind != KindConfiguration {
			t.Errorf("Kind = %v, want %v", err.Kind, KindConfiguration)
		}
	})

	t.Run("OrdinalCollision", func(t *testing.T) {
		err := OrdinalCollision(3, "a", "b")
		if err.Kind != KindOrdinalCollision || err.Phase != PhaseExport {
			t.Errorf("Phase=%v Kind=%v", err.Phase, err.Kind)
		}
		if err.Symbol != "b" {
			t.Errorf("Symbol = %q, want 'b'", err.Symbol)
		}
		if !strings.Contains(err.Detail, "a") {
			t.Errorf("Detail = %q, should name the first owner", err.Detail)
		}
	})

	t.Run("Precedence", func(t *testing.T) {
		err := Precedence(PhaseImport, "Create", "already built")
		if !errors.Is(err, ErrPrecedence) {
			t.Errorf("expected precedence error, got %v", err)
		}
		if err.Detail != "Create called while already built" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("NotPlaced", func(t *testing.T) {
		err := NotPlaced(PhaseLayout, "idata.dir")
		if err.Kind != KindPrecedence {
			t.Errorf("Kind = %v, want %v", err.Kind, KindPrecedence)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseLayout, "chunk", 10, 5)
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseExport, "export", "Missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("inner")
		err := Wrap(PhaseManifest, KindInvalidInput, cause, "decode manifest")
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep the cause in the chain")
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Error("Wrap should keep the kind")
		}
	})
}
