// Package engine provides the low-level WebAssembly runtime for solver
// modules.
//
// This package wraps wazero to compile and instantiate WASI preview1
// solver modules, with an on-disk compilation cache, project filesystem
// mounts, and guest memory staging for the call layer above it.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine   - Creates and manages the wazero runtime
//	Module   - A compiled solver module, can create instances
//	Instance - A running instance with exports, memory and allocator
//
// # Instantiation Flow
//
//  1. Engine.Load() compiles the module binary (cached on disk when a
//     cache directory is configured)
//  2. Module.Instantiate() mounts the project directory, applies the
//     guest environment and wires the guest's standard streams
//  3. The reactor entrypoint _initialize runs once, if exported
//  4. Instance caches the module's memory, allocator and free exports
//
// # Allocator Cascade
//
// Solver toolchains disagree on allocator export names. Instance probes
// in order: cabi_realloc, canonical_abi_realloc, allocate, alloc. A
// four-parameter export is called with canonical realloc semantics
// (ptr, old-size, align, new-size); shorter signatures receive the size
// alone. Free probes cabi_free, deallocate, free the same way.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use.
// Instance is NOT thread-safe and should be used by a single goroutine.
//
// Most users should use the bridge package for the typed solver API.
// This package is for advanced use cases requiring direct control.
package engine
