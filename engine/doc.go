// Package engine is the boundary to the WebAssembly interpreter.
//
// It wraps wazero in interpreter mode and exposes it the way a C embedding
// API would: opaque objects, raw 64-bit stack slots, status codes and
// diagnostic strings. Everything above this package works with typed
// values and structured errors; nothing above it imports wazero's runtime
// types directly except api.Function, api.Memory and api.Global.
//
// # Objects
//
//	Interpreter - configuration, compilation cache, module validation
//	Machine     - one isolated interpreter instance (a wazero.Runtime)
//	Compiled    - a module compiled by a Machine
//	Instance    - an instantiated module plus the host modules for its imports
//
// # Process-wide state
//
// Init and Shutdown manage the process-wide logger and an optional shared
// on-disk compilation cache. Both are idempotent. Nothing is initialised
// implicitly except the no-op logger.
//
// Interpreters created without their own cache directory take a reference
// on the shared cache. Shutdown detaches it; interpreters holding it keep
// working, and the cache is closed when the last of them is closed.
//
// # Calls and status codes
//
// Call runs a function on a caller-provided stack and returns an Outcome.
// Classify maps interpreter errors to a Status:
//
//	StatusOK       results are on the stack
//	StatusTrap     guest trap, Outcome.Trap names the reason
//	StatusHost     a host function aborted the call
//	StatusExit     the instance was closed with an exit code
//	StatusCanceled the call context ended and the instance was closed
//	StatusFailed   anything else
//
// Host functions abort a call by panicking with an error. The interpreter
// recovers the panic and returns the error wrapped, so structured errors
// survive the round trip through guest frames.
//
// # Thread Safety
//
// Interpreter is safe for concurrent use. A Machine and its instances must
// be driven by one goroutine at a time.
package engine
