package engine

import (
	stderrors "errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasmbind/errors"
)

// Status is the outcome code of a raw interpreter call.
type Status int

const (
	// StatusOK means the call completed and results are on the stack.
	StatusOK Status = iota
	// StatusTrap means guest code trapped. The instance stays usable.
	StatusTrap
	// StatusHost means a host function aborted the call with an error.
	StatusHost
	// StatusExit means the instance was closed with an exit code.
	StatusExit
	// StatusCanceled means the call context was canceled or timed out and
	// the interpreter closed the instance.
	StatusCanceled
	// StatusFailed covers every other interpreter failure.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTrap:
		return "trap"
	case StatusHost:
		return "host"
	case StatusExit:
		return "exit"
	case StatusCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

// Outcome describes how a raw call ended.
type Outcome struct {
	// Err is the interpreter's error, unmodified.
	Err error
	// Host is the structured error raised by a host function, for
	// StatusHost and for traps raised by host stubs.
	Host *errors.Error
	// Message is the first line of the interpreter diagnostic.
	Message  string
	Trap     errors.TrapReason
	Status   Status
	ExitCode uint32
}

// trapMessages maps the interpreter's runtime error text to trap reasons.
var trapMessages = []struct {
	text   string
	reason errors.TrapReason
}{
	{"stack overflow", errors.TrapStackOverflow},
	{"unreachable", errors.TrapUnreachable},
	{"integer divide by zero", errors.TrapDivisionByZero},
	{"integer overflow", errors.TrapIntegerOverflow},
	{"invalid conversion to integer", errors.TrapInvalidConversion},
	{"out of bounds memory access", errors.TrapOutOfBounds},
	{"invalid table access", errors.TrapTableAccess},
	{"indirect call type mismatch", errors.TrapIndirectCallMismatch},
}

const wasmErrorPrefix = "wasm error: "

// Classify maps an error returned by the interpreter to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusOK}
	}
	out := Outcome{Err: err, Message: diagnostic(err), Status: StatusFailed}

	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		switch out.ExitCode {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			out.Status = StatusCanceled
		default:
			out.Status = StatusExit
			out.Trap = errors.TrapExit
		}
		return out
	}

	if hostErr, ok := errors.As(err); ok {
		out.Host = hostErr
		if hostErr.Kind == errors.KindTrap {
			out.Status = StatusTrap
			out.Trap = hostErr.Trap
		} else {
			out.Status = StatusHost
		}
		return out
	}

	if reason, ok := TrapReasonOf(out.Message); ok {
		out.Status = StatusTrap
		out.Trap = reason
		out.Message = strings.TrimPrefix(out.Message, wasmErrorPrefix)
	}
	return out
}

// TrapReasonOf recognises an interpreter runtime error message.
func TrapReasonOf(msg string) (errors.TrapReason, bool) {
	if !strings.HasPrefix(msg, wasmErrorPrefix) {
		return "", false
	}
	msg = strings.TrimPrefix(msg, wasmErrorPrefix)
	for _, tm := range trapMessages {
		if strings.HasPrefix(msg, tm.text) {
			return tm.reason, true
		}
	}
	return errors.TrapUnknown, true
}
