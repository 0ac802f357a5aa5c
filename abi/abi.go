package abi

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/riptide-sim/riptide/errors"
)

//go:embed solver.wit
var witText string

// Op enumerates every operation of the solver ABI. The enumeration is the
// host-side index of the contract; the WIT document carries the signatures.
type Op int

const (
	OpInitializeSimulation Op = iota
	OpCalculateDt
	OpIsFinished
	OpStep
	OpFinalizeSimulation
	OpNDims
	OpNElements
	OpNElementsGlobal
	OpNDofs
	OpNDofsGlobal
	OpNDofsElement
	OpNVariables
	OpLoadCellAverages
	OpLoadPrimitive
	OpLoadNodeCoordinates
	OpStoreInDatabase
	OpGetTime
	OpGetForest
	OpVersionSolver
	OpVersionSolverExtended
	OpEvalCode

	NumOps
)

// opNames maps each operation to its WIT function name. Order must follow
// the enumeration above; buildTable cross-checks every entry against the
// parsed contract.
var opNames = [NumOps]string{
	OpInitializeSimulation:  "initialize-simulation",
	OpCalculateDt:           "calculate-dt",
	OpIsFinished:            "is-finished",
	OpStep:                  "step",
	OpFinalizeSimulation:    "finalize-simulation",
	OpNDims:                 "ndims",
	OpNElements:             "nelements",
	OpNElementsGlobal:       "nelements-global",
	OpNDofs:                 "ndofs",
	OpNDofsGlobal:           "ndofs-global",
	OpNDofsElement:          "ndofs-element",
	OpNVariables:            "nvariables",
	OpLoadCellAverages:      "load-cell-averages",
	OpLoadPrimitive:         "load-primitive",
	OpLoadNodeCoordinates:   "load-node-coordinates",
	OpStoreInDatabase:       "store-in-database",
	OpGetTime:               "get-time",
	OpGetForest:             "get-forest",
	OpVersionSolver:         "version-solver",
	OpVersionSolverExtended: "version-solver-extended",
	OpEvalCode:              "eval-code",
}

// String returns the operation's WIT name.
func (op Op) String() string {
	if op < 0 || op >= NumOps {
		return fmt.Sprintf("op(%d)", int(op))
	}
	return opNames[op]
}

// ExportName returns the guest export name: the snake_case form of the WIT
// name.
func (op Op) ExportName() string {
	return strings.ReplaceAll(op.String(), "-", "_")
}

// Module-level exports every solver module carries alongside the operation
// table.
const (
	ExportMemory     = "memory"
	ExportAlloc      = "alloc"
	ExportFree       = "free"
	ExportInitialize = "_initialize"
)

// Operation is one entry of the parsed contract table.
type Operation struct {
	Op          Op
	Name        string // WIT function name (kebab-case)
	Export      string // guest export name (snake_case)
	Params      []wit.Type
	Results     []wit.Type
	CoreParams  []api.ValueType
	CoreResults []api.ValueType
}

var (
	tableOnce sync.Once
	table     []Operation
	tableErr  error
)

// Operations returns the full contract table, parsing the embedded WIT
// document on first use.
func Operations() ([]Operation, error) {
	tableOnce.Do(func() {
		table, tableErr = buildTable()
	})
	return table, tableErr
}

// Lookup returns the contract entry for a single operation.
func Lookup(op Op) (Operation, error) {
	if op < 0 || op >= NumOps {
		return Operation{}, errors.InvalidInput(errors.PhaseResolve, fmt.Sprintf("operation %d outside contract", int(op)))
	}
	ops, err := Operations()
	if err != nil {
		return Operation{}, err
	}
	return ops[op], nil
}

// WIT returns the embedded contract document verbatim.
func WIT() string {
	return witText
}

func buildTable() ([]Operation, error) {
	funcs, err := parseWitFunctions(witText)
	if err != nil {
		return nil, err
	}
	if len(funcs) != int(NumOps) {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			fmt.Sprintf("contract declares %d functions, expected %d", len(funcs), int(NumOps)))
	}

	ops := make([]Operation, NumOps)
	for op := Op(0); op < NumOps; op++ {
		name := opNames[op]
		sig, ok := funcs[name]
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "contract function", name)
		}
		coreParams, err := flattenAll(sig.params)
		if err != nil {
			return nil, errors.ParseFailed("params of "+name, err)
		}
		coreResults, err := flattenAll(sig.results)
		if err != nil {
			return nil, errors.ParseFailed("results of "+name, err)
		}
		ops[op] = Operation{
			Op:          op,
			Name:        name,
			Export:      op.ExportName(),
			Params:      sig.params,
			Results:     sig.results,
			CoreParams:  coreParams,
			CoreResults: coreResults,
		}
	}
	return ops, nil
}
