package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // one-time runtime bootstrap
	PhaseResolve   Phase = "resolve"   // export resolution against the ABI
	PhaseDispatch  Phase = "dispatch"  // forwarding an operation to the solver
	PhaseTeardown  Phase = "teardown"  // one-time finalization
	PhaseProject   Phase = "project"   // project environment activation
	PhaseEngine    Phase = "engine"    // wasm engine and guest memory
)

// Kind categorizes the error
type Kind string

const (
	KindAlreadyInitialized Kind = "already_initialized"
	KindNotInitialized     Kind = "not_initialized"
	KindFinalized          Kind = "finalized"
	KindNotFound           Kind = "not_found"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindInvalidInput       Kind = "invalid_input"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindAllocation         Kind = "allocation"
	KindGuestTrap          Kind = "guest_trap"
	KindLoadFailed         Kind = "load_failed"
	KindInstantiation      Kind = "instantiation"
	KindParseFailed        Kind = "parse_failed"
	KindShutdown           Kind = "shutdown"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Op sets the operation the error belongs to
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
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

// AlreadyInitialized reports a second bootstrap attempt on the same runtime
func AlreadyInitialized() *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindAlreadyInitialized,
		Detail: "runtime already initialized",
	}
}

// NotInitialized reports an operation invoked before bootstrap completed
func NotInitialized(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Op:     op,
		Detail: "runtime not initialized",
	}
}

// Finalized reports an operation invoked after teardown
func Finalized(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFinalized,
		Op:     op,
		Detail: "runtime already finalized",
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

// SignatureMismatch reports a resolved export whose core signature deviates
// from the ABI contract
func SignatureMismatch(op, want, got string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindSignatureMismatch,
		Op:     op,
		Detail: fmt.Sprintf("want %s, guest exports %s", want, got),
	}
}

// GuestTrap wraps a failure that occurred inside the solver during a
// forwarded call
func GuestTrap(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindGuestTrap,
		Op:     op,
		Detail: "forwarded call failed",
		Cause:  cause,
	}
}

// OutOfBounds reports a guest memory access outside the linear memory
func OutOfBounds(offset, length, size uint32) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
	}
}

// AllocationFailed reports a guest-side allocation failure
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes in guest memory", size),
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindLoadFailed,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindParseFailed,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
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
