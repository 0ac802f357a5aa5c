// Package errors provides structured error types for the riptide library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the operation name, a detail message, and
// a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindNotFound).
//		Op("calculate-dt").
//		Detail("export %q missing from module", "calculate_dt").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotInitialized(errors.PhaseDispatch, "step")
//	err := errors.GuestTrap("step", trapErr)
//
// Sequencing violations (double initialize, use before initialize, use after
// finalize) are ordinary recoverable errors of kinds already_initialized,
// not_initialized, and finalized; the library never terminates the embedding
// process. All errors implement the standard error interface and support
// errors.Is/As; Is matches on Phase and Kind.
package errors
