package phase

import (
	"errors"
	"testing"

	dlerrors "github.com/wippyai/dlltab/errors"
)

func TestMarkerTransitions(t *testing.T) {
	m := New(dlerrors.PhaseImport)

	if m.State() != Collecting {
		t.Fatalf("State() = %v, want collecting", m.State())
	}
	if err := m.Collecting("Add"); err != nil {
		t.Errorf("Collecting before seal: %v", err)
	}
	if err := m.Built("DirRVA"); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("Built before seal = %v, want precedence error", err)
	}

	m.Seal()

	if m.State() != Built {
		t.Fatalf("State() = %v, want built", m.State())
	}
	if err := m.Built("DirRVA"); err != nil {
		t.Errorf("Built after seal: %v", err)
	}
	err := m.Collecting("Add")
	if !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Fatalf("Collecting after seal = %v, want precedence error", err)
	}

	var e *dlerrors.Error
	if !errors.As(err, &e) || e.Phase != dlerrors.PhaseImport {
		t.Errorf("error phase = %v, want import", err)
	}
}

func TestMarkerFail(t *testing.T) {
	m := New(dlerrors.PhaseDelayLoad)
	m.Fail()

	if m.State() != Failed {
		t.Fatalf("State() = %v, want failed", m.State())
	}
	if err := m.Collecting("Create"); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("Collecting after fail = %v, want precedence error", err)
	}
	if err := m.Built("DirRVA"); !errors.Is(err, dlerrors.ErrPrecedence) {
		t.Errorf("Built after fail = %v, want precedence error", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Collecting, "collecting"},
		{Built, "built"},
		{Failed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
