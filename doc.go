// Package riptide defines the boundary contract for embedding Riptide solver
// modules in Go programs.
//
// Riptide solvers are numerical simulation codes (PDE solvers) compiled to
// WebAssembly (WASI preview 1). All numerically significant work, namely time
// integration, spatial discretization, and mesh adaptivity, lives inside the
// solver module. This library is the thin host side: it boots an embedded
// WebAssembly runtime, activates a project environment, resolves the solver's
// fixed export table into typed bindings, and forwards primitive-typed calls.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	riptide/             Root package: boundary contract, handles, library version
//	├── bridge/          Embedder-facing Runtime: bootstrap, dispatch, teardown
//	├── engine/          Low-level wazero embedding: compilation cache, WASI, guest memory
//	├── abi/             The closed solver ABI: WIT contract and operation table
//	├── project/         Project environment activation: depot, .env, module discovery
//	├── errors/          Structured error types
//	└── cmd/run/         Simulation controller CLI
//
// # Quick Start
//
// Drive a simulation to completion:
//
//	rt := bridge.New(bridge.Config{ProjectDir: "examples/project"})
//	if err := rt.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Finalize(ctx)
//
//	sim, err := rt.InitializeSimulation(ctx, "scenarios/advection.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    done, err := rt.IsFinished(ctx, sim)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if done {
//	        break
//	    }
//	    if err := rt.Step(ctx, sim); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	if err := rt.FinalizeSimulation(ctx, sim); err != nil {
//	    log.Fatal(err)
//	}
//
// # Lifecycle
//
// Each Runtime is initialized at most once and finalized at most once, in that
// order. Sequencing violations (double initialize, use before initialize, use
// after finalize) are reported as recoverable errors, never by terminating the
// process. The lifecycle flags are monotonic: a finalized Runtime cannot be
// reinitialized; construct a new one instead.
//
// # Thread Safety
//
// bridge.Runtime is safe for concurrent use: lifecycle transitions and
// forwarded calls are serialized on an internal lock, so the solver instance
// only ever sees one call at a time. Packages below the bridge (engine,
// project) follow the rules stated in their own documentation.
//
// # Memory Model
//
// Bulk data outputs are always caller-allocated and caller-sized slices. The
// library stages transfers through guest-owned buffers for the duration of a
// single call and never retains a reference to caller memory. Data handed to
// StoreInDatabase is copied into the solver's own long-lived store.
package riptide
