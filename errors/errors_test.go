package errors

import (
	"errors"
	"fmt"
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
			name: "signature mismatch",
			err: &Error{
				Phase: PhaseLookup,
				Kind:  KindSignatureMismatch,
				Name:  "add",
				Want:  "(i32, i32) -> i32",
				Got:   "(i64) -> i32",
			},
			contains: []string{"[lookup]", "signature_mismatch", "add", "want (i32, i32) -> i32", "got (i64) -> i32"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMemory,
				Kind:  KindMemoryAccess,
			},
			contains: []string{"[memory]", "memory_access"},
		},
		{
			name: "trap with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindTrap,
				Trap:   TrapDivisionByZero,
				Detail: "integer divide by zero",
				Cause:  errors.New("wasm error"),
			},
			contains: []string{"[call]", "trap(division_by_zero)", "integer divide by zero", "caused by", "wasm error"},
		},
		{
			name:     "interpreter status",
			err:      Interpreter(3, "context canceled", nil),
			contains: []string{"interpreter", "status 3", "context canceled"},
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
	err := ModuleLoad("bad magic", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Trap(TrapUnreachable, "unreachable", nil)

	if !err.Is(&Error{Phase: PhaseCall, Kind: KindTrap}) {
		t.Error("Is should match same phase and kind")
	}
	if !err.Is(&Error{Kind: KindTrap}) {
		t.Error("Is should match kind alone when target has no phase")
	}
	if err.Is(&Error{Phase: PhaseHost, Kind: KindTrap}) {
		t.Error("Is should not match different phase")
	}
	if !err.Is(&Error{Kind: KindTrap, Trap: TrapUnreachable}) {
		t.Error("Is should match same trap reason")
	}
	if err.Is(&Error{Kind: KindTrap, Trap: TrapDivisionByZero}) {
		t.Error("Is should not match different trap reason")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, &Error{Kind: KindTrap}) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestIsKindAndIsTrap(t *testing.T) {
	err := fmt.Errorf("call: %w", Trap(TrapDivisionByZero, "", nil))

	if !IsKind(err, KindTrap) {
		t.Error("IsKind should report trap")
	}
	if IsKind(err, KindMemoryAccess) {
		t.Error("IsKind should not report memory_access")
	}
	if !IsTrap(err, TrapDivisionByZero) {
		t.Error("IsTrap should report division_by_zero")
	}
	if IsTrap(errors.New("plain"), TrapDivisionByZero) {
		t.Error("IsTrap should be false for plain errors")
	}

	e, ok := As(err)
	if !ok || e.Trap != TrapDivisionByZero {
		t.Errorf("As = %v, %v", e, ok)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLink, KindSignatureMismatch).
		Name("env.log").
		Want("(i32) -> ()").
		Got("(i64) -> ()").
		Value(42).
		Status(7).
		Trap(TrapHost).
		Cause(cause).
		Detail("expected %s", "i32").
		Build()

	if err.Phase != PhaseLink {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLink)
	}
	if err.Kind != KindSignatureMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindSignatureMismatch)
	}
	if err.Name != "env.log" {
		t.Errorf("Name = %v", err.Name)
	}
	if err.Want != "(i32) -> ()" || err.Got != "(i64) -> ()" {
		t.Errorf("Want=%v Got=%v", err.Want, err.Got)
	}
	if err.Value != 42 || err.Status != 7 || err.Trap != TrapHost {
		t.Errorf("Value=%v Status=%v Trap=%v", err.Value, err.Status, err.Trap)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected i32" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		name  string
		kind  Kind
		phase Phase
	}{
		{AllocationFailed(PhaseAlloc, "stack", nil), "AllocationFailed", KindAllocation, PhaseAlloc},
		{ModuleLoad("truncated", nil), "ModuleLoad", KindModuleLoad, PhaseLoad},
		{FunctionNotFound(PhaseLookup, "f"), "FunctionNotFound", KindFunctionNotFound, PhaseLookup},
		{GlobalNotFound("g"), "GlobalNotFound", KindGlobalNotFound, PhaseLookup},
		{SignatureMismatch(PhaseLookup, "f", "i32", "i64"), "SignatureMismatch", KindSignatureMismatch, PhaseLookup},
		{DuplicateLinkage("env", "f"), "DuplicateLinkage", KindDuplicateLinkage, PhaseLink},
		{Trap(TrapExit, "", nil), "Trap", KindTrap, PhaseCall},
		{MemoryAccess(10, 4, 8), "MemoryAccess", KindMemoryAccess, PhaseMemory},
		{Interpreter(1, "x", nil), "Interpreter", KindInterpreter, PhaseCall},
		{Internal(PhaseDecode, "kind %s", "i32"), "Internal", KindInternal, PhaseDecode},
		{Overflow(PhaseEncode, 1<<40, "i32"), "Overflow", KindOverflow, PhaseEncode},
		{Closed(PhaseCall, "runtime"), "Closed", KindClosed, PhaseCall},
		{Unsupported(PhaseLoad, "imported memory"), "Unsupported", KindUnsupported, PhaseLoad},
		{InvalidInput(PhaseEnv, "nil"), "InvalidInput", KindInvalidInput, PhaseEnv},
		{Wrap(PhaseCall, KindInterpreter, nil, "x"), "Wrap", KindInterpreter, PhaseCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestMemoryAccessDetail(t *testing.T) {
	err := MemoryAccess(65534, 4, 65536)
	if !strings.Contains(err.Detail, "[65534, 65538)") {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestTrapReason_Poisoning(t *testing.T) {
	if !TrapExit.Poisoning() {
		t.Error("exit should poison the instance")
	}
	for _, r := range []TrapReason{TrapUnreachable, TrapDivisionByZero, TrapStackOverflow, TrapOutOfBounds, TrapHost} {
		if r.Poisoning() {
			t.Errorf("%s should be call-local", r)
		}
	}
}
