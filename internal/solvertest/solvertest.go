// Package solvertest generates a self-contained solver guest for tests.
// The module implements every contract export with fixed, deterministic
// arithmetic so host tests can assert exact values without shipping a
// prebuilt binary.
//
// The generated solver describes a two-dimensional run with 16 elements,
// 4 degrees of freedom per element and 2 variables. Every simulation
// advances in steps of Dt and reports finished after FinishSteps steps.
// Cell averages, primitive values and node coordinates follow the
// closed-form expressions exposed as functions below. The database holds
// DatabaseSlots vectors of DatabaseSlotLen doubles; a vector stored at
// slot s is read back through load-primitive with index DatabaseIndexBase+s.
//
// Two inputs trap by construction, for exercising host error paths: an
// empty scenario string passed to initialize-simulation, and source code
// starting with EvalTrapToken passed to eval-code.
package solvertest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Fixed quantities reported by the generated solver.
const (
	NDims           = 2
	NElements       = 16
	NElementsGlobal = 16
	NDofs           = 64
	NDofsGlobal     = 64
	NDofsElement    = 4
	NVariables      = 2

	// Dt is the time step reported by calculate-dt; after FinishSteps
	// steps is-finished flips to true.
	Dt          = 0.05
	FinishSteps = 10

	// Database geometry. Slot s lives at a fixed memory region and is
	// read back via load-primitive with index DatabaseIndexBase+s.
	DatabaseSlots     = 8
	DatabaseSlotLen   = 64
	DatabaseIndexBase = 100

	// CoordCount is the length of the node coordinate export.
	CoordCount = NDims * NDofs

	// EvalTrapToken makes eval-code trap when it starts the source.
	EvalTrapToken = "X"
)

// Version strings compiled into the generated module.
const (
	Version         = "riptide-core 1.8.2; kernels 2.1.0"
	VersionExtended = "riptide-core 1.8.2; kernels 2.1.0; meshforge 0.9.4; quadrules 1.0.1; wasi-libm 0.3.0"
)

// CellAverage returns the cell average of variable index at element i.
func CellAverage(index, i int) float64 {
	return float64(index*1000 + i)
}

// Primitive returns the nodal value of primitive variable index at
// degree of freedom i.
func Primitive(index, i int) float64 {
	return float64(index*1000+i) + 0.25
}

// NodeCoordinate returns the i-th entry of the coordinate export.
func NodeCoordinate(i int) float64 {
	return float64(i) * 0.125
}

// Forest returns the forest token reported for a simulation handle.
func Forest(handle int32) uint32 {
	return 0xF0 + uint32(handle)
}

// Time returns the simulation time after the given number of steps.
func Time(steps int) float64 {
	return float64(steps) * Dt
}

var (
	buildOnce sync.Once
	buildData []byte
	buildErr  error
)

// Module returns the encoded guest module.
func Module(tb testing.TB) []byte {
	tb.Helper()
	buildOnce.Do(func() {
		buildData, buildErr = build()
	})
	if buildErr != nil {
		tb.Fatalf("build solver module: %v", buildErr)
	}
	return buildData
}

// WriteModule writes the guest module into dir under the default module
// file name and returns its path.
func WriteModule(tb testing.TB, dir string) string {
	tb.Helper()
	path := filepath.Join(dir, "solver.wasm")
	if err := os.WriteFile(path, Module(tb), 0o644); err != nil {
		tb.Fatalf("write solver module: %v", err)
	}
	return path
}

// WriteProject creates a project directory containing the guest module
// and returns the directory path.
func WriteProject(tb testing.TB) string {
	tb.Helper()
	dir := tb.TempDir()
	WriteModule(tb, dir)
	return dir
}
