package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which builder or stage raised the error
type Phase string

const (
	PhaseImport    Phase = "import"    // classic import tables
	PhaseExport    Phase = "export"    // export directory
	PhaseDelayLoad Phase = "delayload" // delay-load tables and thunks
	PhaseFixPath   Phase = "fixpath"   // reserved-size DLL names
	PhaseLayout    Phase = "layout"    // address assignment
	PhaseWrite     Phase = "write"     // chunk serialization
	PhaseManifest  Phase = "manifest"  // CLI manifest loading
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindOrdinalCollision Kind = "ordinal_collision"
	KindPrecedence       Kind = "precedence"
	KindInvalidInput     Kind = "invalid_input"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindNotFound         Kind = "not_found"
)

// Sentinels for errors.Is. They carry no phase and therefore match any phase.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrOrdinalCollision = &Error{Kind: KindOrdinalCollision}
	ErrPrecedence       = &Error{Kind: KindPrecedence}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrOutOfBounds      = &Error{Kind: KindOutOfBounds}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is the structured error type used by every builder
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	DLL    string
	Symbol string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.DLL != "" || e.Symbol != "" {
		b.WriteString(" at ")
		switch {
		case e.DLL != "" && e.Symbol != "":
			b.WriteString(e.DLL)
			b.WriteByte('!')
			b.WriteString(e.Symbol)
		case e.DLL != "":
			b.WriteString(e.DLL)
		default:
			b.WriteString(e.Symbol)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// DLL sets the DLL the error relates to
func (b *Builder) DLL(name string) *Builder {
	b.err.DLL = name
	return b
}

// Symbol sets the symbol the error relates to
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Configuration creates a configuration error
func Configuration(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConfiguration,
		Detail: detail,
	}
}

// OrdinalCollision creates an error for two exports claiming one ordinal
func OrdinalCollision(ordinal uint16, first, second string) *Error {
	return &Error{
		Phase:  PhaseExport,
		Kind:   KindOrdinalCollision,
		Symbol: second,
		Value:  ordinal,
		Detail: fmt.Sprintf("ordinal %d already assigned to %s", ordinal, first),
	}
}

// Precedence creates an error for an operation invoked in the wrong build phase
func Precedence(phase Phase, op, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPrecedence,
		Detail: fmt.Sprintf("%s called while %s", op, state),
	}
}

// NotPlaced creates an error for reading the address of a chunk before layout
func NotPlaced(phase Phase, chunk string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPrecedence,
		Detail: fmt.Sprintf("chunk %s has no address yet", chunk),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, what string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s index %d out of bounds (length %d)", what, index, length),
		Value:  index,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
