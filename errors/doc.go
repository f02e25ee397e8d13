// Package errors provides the structured error taxonomy of the binding.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Traps additionally carry a TrapReason, and non-trap interpreter
// failures carry the interpreter Status code. Diagnostic text is always a
// Go-owned copy of whatever the interpreter reported.
//
// Use the Builder for structured construction:
//
//	err := errors.New(errors.PhaseLookup, errors.KindSignatureMismatch).
//		Name("add").
//		Want("(i32, i32) -> i32").
//		Got("(i64) -> i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FunctionNotFound(errors.PhaseLookup, "add")
//	err := errors.Trap(errors.TrapDivisionByZero, "integer divide by zero", cause)
//
// Errors of KindInternal indicate a defect in the binding layer rather than
// a user error; they are raised with panic and never returned.
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with no Phase matches any phase:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindTrap, Trap: errors.TrapUnreachable})
package errors
