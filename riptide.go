package riptide

import (
	"context"
	"fmt"
)

// Library version, compiled in. The version queries are answerable before
// Initialize and after Finalize; they never consult the loaded solver.
const (
	VersionMajor = 0
	VersionMinor = 4
	VersionPatch = 1
)

// Version returns the library version as "major.minor.patch".
func Version() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// Handle identifies one simulation instance. Handles are issued and owned by
// the solver module; the host passes them through without interpreting them.
type Handle int32

// Forest is an opaque reference to the solver's adaptive mesh forest.
// Unstable: the representation is solver-internal and may change.
type Forest uint32

// Solver is the full boundary surface of a loaded solver module. It is
// implemented by bridge.Runtime; embedders that only drive simulations can
// depend on this interface instead of the concrete type.
type Solver interface {
	// Initialize performs the one-time bootstrap: activate the project
	// environment, start the embedded runtime, load the solver module, and
	// resolve its export table. Must precede every other call except the
	// library version queries.
	Initialize(ctx context.Context) error
	// Finalize shuts the runtime down and drops the resolved bindings.
	// After Finalize no further calls succeed, including Finalize itself.
	Finalize(ctx context.Context) error

	// Library version queries: answerable at any point in the lifecycle.
	VersionMajor() int
	VersionMinor() int
	VersionPatch() int
	Version() string

	// Solver version strings, resolved once at bootstrap and stable across
	// calls. Available only between Initialize and Finalize.
	SolverVersion() (string, error)
	SolverVersionExtended() (string, error)

	// Simulation lifecycle.
	InitializeSimulation(ctx context.Context, scenario string) (Handle, error)
	CalculateDt(ctx context.Context, h Handle) (float64, error)
	IsFinished(ctx context.Context, h Handle) (bool, error)
	Step(ctx context.Context, h Handle) error
	FinalizeSimulation(ctx context.Context, h Handle) error

	// Scalar simulation queries.
	NDims(ctx context.Context, h Handle) (int32, error)
	NElements(ctx context.Context, h Handle) (int32, error)
	NElementsGlobal(ctx context.Context, h Handle) (int32, error)
	NDofs(ctx context.Context, h Handle) (int32, error)
	NDofsGlobal(ctx context.Context, h Handle) (int32, error)
	NDofsElement(ctx context.Context, h Handle) (int32, error)
	NVariables(ctx context.Context, h Handle) (int32, error)
	Time(ctx context.Context, h Handle) (float64, error)

	// Bulk data export into caller-allocated, caller-sized buffers.
	LoadCellAverages(ctx context.Context, h Handle, index int32, out []float64) error
	LoadPrimitive(ctx context.Context, h Handle, index int32, out []float64) error
	LoadNodeCoordinates(ctx context.Context, h Handle, out []float64) error

	// StoreInDatabase hands a vector to the solver's per-simulation store at
	// the given index. The store must already exist with capacity for index.
	StoreInDatabase(ctx context.Context, h Handle, index int32, data []float64) error

	// GetForest exposes the solver's mesh forest as an opaque reference.
	// Unstable, for tooling that knows the solver's internals.
	GetForest(ctx context.Context, h Handle) (Forest, error)

	// EvalCode executes arbitrary source text in the solver's evaluator.
	// Unchecked; intended for development and debugging only.
	EvalCode(ctx context.Context, source string) error
}

// Memory is read/write access to a guest module's linear memory.
type Memory interface {
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadUint32(offset uint32) (uint32, error)
	WriteUint32(offset uint32, value uint32) error
	ReadFloat64s(offset uint32, out []float64) error
	WriteFloat64s(offset uint32, vals []float64) error
	Size() uint32
}

// Allocator reserves and releases buffers inside a guest module's memory.
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr, size uint32) error
}
