package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseInit     Phase = "init"     // process-wide interpreter state
	PhaseEnv      Phase = "env"      // environment and signature registry
	PhaseAlloc    Phase = "alloc"    // runtime and stack reservation
	PhaseLoad     Phase = "load"     // module parsing and loading
	PhaseLookup   Phase = "lookup"   // export lookup and binding
	PhaseLink     Phase = "link"     // host function linking
	PhaseEncode   Phase = "encode"   // Go to WASM
	PhaseDecode   Phase = "decode"   // WASM to Go
	PhaseCall     Phase = "call"     // interpreter execution
	PhaseHost     Phase = "host"     // inside a host callback
	PhaseMemory   Phase = "memory"   // linear memory access
	PhaseValidate Phase = "validate" // data validation
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation        Kind = "allocation"
	KindModuleLoad        Kind = "module_load"
	KindFunctionNotFound  Kind = "function_not_found"
	KindGlobalNotFound    Kind = "global_not_found"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindDuplicateLinkage  Kind = "duplicate_linkage"
	KindTrap              Kind = "trap"
	KindMemoryAccess      Kind = "memory_access"
	KindInternal          Kind = "internal"
	KindInterpreter       Kind = "interpreter"
	KindImmutableGlobal   Kind = "immutable_global"
	KindOverflow          Kind = "overflow"
	KindClosed            Kind = "closed"
	KindSealed            Kind = "sealed"
	KindUnsupported       Kind = "unsupported"
	KindInvalidInput      Kind = "invalid_input"
)

// TrapReason names the runtime fault behind a KindTrap error.
type TrapReason string

const (
	TrapStackOverflow        TrapReason = "stack_overflow"
	TrapUnreachable          TrapReason = "unreachable"
	TrapDivisionByZero       TrapReason = "division_by_zero"
	TrapIntegerOverflow      TrapReason = "integer_overflow"
	TrapInvalidConversion    TrapReason = "invalid_conversion"
	TrapOutOfBounds          TrapReason = "out_of_bounds"
	TrapTableAccess          TrapReason = "table_access"
	TrapIndirectCallMismatch TrapReason = "indirect_call_mismatch"
	TrapMissingImport        TrapReason = "missing_import"
	TrapExit                 TrapReason = "exit"
	TrapHost                 TrapReason = "host"
	TrapUnknown              TrapReason = "unknown"
)

// Poisoning reports whether a trap leaves the module instance unusable.
// Only a guest exit closes the instance, whether the interpreter reports it
// or a host function returns an exit trap; every other trap aborts the
// current call and nothing else.
func (r TrapReason) Poisoning() bool {
	return r == TrapExit
}

// Error is the structured error type used throughout the binding
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Trap   TrapReason
	Name   string
	Want   string
	Got    string
	Detail string
	Status int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Trap != "" {
		b.WriteByte('(')
		b.WriteString(string(e.Trap))
		b.WriteByte(')')
	}

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(e.Name)
	}

	if e.Want != "" || e.Got != "" {
		b.WriteString(": want ")
		b.WriteString(e.Want)
		b.WriteString(", got ")
		b.WriteString(e.Got)
	}

	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}

	if e.Detail != "" {
		if e.Want != "" || e.Got != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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
// A target with an empty Phase matches on Kind alone, and a target with a
// Trap reason additionally requires the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Trap != "" && t.Trap != e.Trap {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err or anything it wraps is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// IsTrap reports whether err is a trap with the given reason.
func IsTrap(err error, reason TrapReason) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindTrap && e.Trap == reason
}

// As is errors.As narrowed to *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
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

// Name sets the export, import or global name involved
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Want sets the expected type or shape
func (b *Builder) Want(s string) *Builder {
	b.err.Want = s
	return b
}

// Got sets the actual type or shape
func (b *Builder) Got(s string) *Builder {
	b.err.Got = s
	return b
}

// Trap sets the trap reason
func (b *Builder) Trap(r TrapReason) *Builder {
	b.err.Trap = r
	return b
}

// Status sets the interpreter status code
func (b *Builder) Status(code int) *Builder {
	b.err.Status = code
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

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: detail,
		Cause:  cause,
	}
}

// ModuleLoad creates a module load error carrying the interpreter diagnostic
func ModuleLoad(diagnostic string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleLoad,
		Detail: diagnostic,
		Cause:  cause,
	}
}

// FunctionNotFound creates a function lookup miss
func FunctionNotFound(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFunctionNotFound,
		Name:   name,
		Detail: fmt.Sprintf("function %q not found", name),
	}
}

// GlobalNotFound creates a global lookup miss
func GlobalNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseLookup,
		Kind:   KindGlobalNotFound,
		Name:   name,
		Detail: fmt.Sprintf("global %q not found", name),
	}
}

// SignatureMismatch creates a signature mismatch error
func SignatureMismatch(phase Phase, name, want, got string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindSignatureMismatch,
		Name:  name,
		Want:  want,
		Got:   got,
	}
}

// DuplicateLinkage creates a duplicate host linkage error
func DuplicateLinkage(moduleName, functionName string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindDuplicateLinkage,
		Name:   moduleName + "." + functionName,
		Detail: "import already bound",
	}
}

// Trap creates a trap error
func Trap(reason TrapReason, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Trap:   reason,
		Detail: detail,
		Cause:  cause,
	}
}

// MemoryAccess creates a linear memory bounds violation error
func MemoryAccess(offset uint64, length uint64, size uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindMemoryAccess,
		Detail: fmt.Sprintf("access [%d, %d) outside memory of %d bytes", offset, offset+length, size),
		Value:  offset,
	}
}

// Interpreter creates an error for a non-trap interpreter status
func Interpreter(status int, message string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindInterpreter,
		Status: status,
		Detail: message,
		Cause:  cause,
	}
}

// Internal creates an invariant violation error. These indicate a defect in
// the binding itself and are raised with panic, never returned.
func Internal(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Want:   target,
		Got:    fmt.Sprintf("%T", value),
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// Closed creates a use-after-release error
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
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
