// Package bridge is the high-level entry point for driving a solver.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt := bridge.New(bridge.Config{ProjectDir: "./project"})
//	if err := rt.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Finalize(ctx)
//
//	sim, err := rt.InitializeSimulation(ctx, "scenarios/wave.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    done, err := rt.IsFinished(ctx, sim)
//	    if err != nil || done {
//	        break
//	    }
//	    if err := rt.Step(ctx, sim); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	rt.FinalizeSimulation(ctx, sim)
//
// # Lifecycle
//
// A Runtime moves through exactly one Initialize and one Finalize. The
// flags are monotonic: after Finalize every call fails, and a finalized
// Runtime cannot be re-initialized. A failed Initialize unwinds fully
// and may be retried. Only the library version queries (VersionMajor,
// VersionMinor, VersionPatch, Version) work outside the initialized
// window.
//
// # Projects
//
// Initialize activates the configured project directory: an optional
// .env file is loaded into the solver's environment, the compiled-code
// depot is resolved (explicit option, then RIPTIDE_DEPOT_PATH, then a
// riptide-depot directory inside the project), and the solver module is
// located. The project directory becomes the solver's filesystem root,
// so scenario paths are resolved inside it.
//
// # Data Access
//
// The bulk load calls copy into caller-allocated buffers. The caller
// sizes them from the scalar queries: NElements values for
// LoadCellAverages, NDofs for LoadPrimitive, NDims*NDofs for
// LoadNodeCoordinates. Undersized buffers are not detected.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. All calls into the solver are
// serialized on an internal lock, so concurrent callers make progress
// one at a time.
package bridge
