// Package errors provides structured error types for the dlltab table builders.
//
// Errors are categorized by Phase (which builder or stage raised them) and Kind
// (error category). The Error type carries the DLL and symbol involved, the
// offending value and an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExport, errors.KindOrdinalCollision).
//		Symbol("CreateThing").
//		Value(uint16(7)).
//		Detail("ordinal %d already used by %s", 7, "DestroyThing").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Configuration(errors.PhaseDelayLoad, "delay-load helper is not resolved")
//	err := errors.Precedence(errors.PhaseImport, "Add", "built")
//
// Every kind has a phase-less sentinel (ErrConfiguration, ErrOrdinalCollision,
// ErrPrecedence, ...) usable with errors.Is from the standard library.
package errors
