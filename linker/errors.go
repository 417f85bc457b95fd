package linker

import (
	"strings"
)

// StageError provides context when one stage of a link fails.
type StageError struct {
	Cause  error
	Stage  string
	DLL    string
	Reason string
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString("link failed")

	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
	}

	if e.DLL != "" {
		b.WriteString(": ")
		b.WriteString(e.DLL)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// stageError creates a StageError with the given parameters
func stageError(stage, dll, reason string, cause error) *StageError {
	return &StageError{
		Stage:  stage,
		DLL:    dll,
		Reason: reason,
		Cause:  cause,
	}
}
