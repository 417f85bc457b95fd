// Package phase implements the Collecting/Built marker the table builders use
// to enforce the Add-then-Create protocol.
package phase

import "github.com/wippyai/dlltab/errors"

// State is the build phase of a builder.
type State uint8

const (
	Collecting State = iota
	Built
	// Failed is entered when Create returns an error after touching the
	// arena. Nothing may be added or read afterwards.
	Failed
)

func (s State) String() string {
	switch s {
	case Built:
		return "built"
	case Failed:
		return "failed"
	}
	return "collecting"
}

// Marker tracks the phase of one builder and reports misuse as precedence
// errors attributed to owner.
type Marker struct {
	owner errors.Phase
	state State
}

// New returns a marker in the Collecting state.
func New(owner errors.Phase) Marker {
	return Marker{owner: owner}
}

// State returns the current phase.
func (m *Marker) State() State {
	return m.state
}

// Collecting fails unless the builder still accepts input.
func (m *Marker) Collecting(op string) error {
	switch m.state {
	case Built:
		return errors.Precedence(m.owner, op, "already built")
	case Failed:
		return errors.Precedence(m.owner, op, "an earlier Create failed")
	}
	return nil
}

// Built fails unless Create has completed.
func (m *Marker) Built(op string) error {
	switch m.state {
	case Collecting:
		return errors.Precedence(m.owner, op, "still collecting")
	case Failed:
		return errors.Precedence(m.owner, op, "an earlier Create failed")
	}
	return nil
}

// Seal moves the marker to Built.
func (m *Marker) Seal() {
	m.state = Built
}

// Fail moves the marker to Failed.
func (m *Marker) Fail() {
	m.state = Failed
}
