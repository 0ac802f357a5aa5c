package bridge

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide/abi"
	"github.com/riptide-sim/riptide/engine"
	"github.com/riptide-sim/riptide/errors"
)

// guestFn is one resolved solver export. The signature was validated
// against the contract at resolve time, so callers encode arguments
// positionally without re-checking.
type guestFn struct {
	name string
	fn   api.Function
}

func (g guestFn) call(ctx context.Context, args ...uint64) ([]uint64, error) {
	res, err := g.fn.Call(ctx, args...)
	if err != nil {
		return nil, errors.GuestTrap(g.name, err)
	}
	return res, nil
}

// guestCalls is the resolved binding table: one named entry per contract
// operation. It replaces the raw pointer table a C binding would keep;
// entries cannot be invoked before resolution or after teardown because
// the Runtime drops the whole table.
type guestCalls struct {
	initializeSimulation guestFn
	calculateDt          guestFn
	isFinished           guestFn
	step                 guestFn
	finalizeSimulation   guestFn

	ndims           guestFn
	nelements       guestFn
	nelementsGlobal guestFn
	ndofs           guestFn
	ndofsGlobal     guestFn
	ndofsElement    guestFn
	nvariables      guestFn

	loadCellAverages    guestFn
	loadPrimitive       guestFn
	loadNodeCoordinates guestFn
	storeInDatabase     guestFn

	getTime   guestFn
	getForest guestFn

	versionSolver         guestFn
	versionSolverExtended guestFn

	evalCode guestFn
}

// slots maps every contract operation to its binding field. resolveCalls
// walks the contract table, so a missing mapping here fails resolution
// loudly rather than leaving a zero binding behind.
func (c *guestCalls) slots() map[abi.Op]*guestFn {
	return map[abi.Op]*guestFn{
		abi.OpInitializeSimulation:  &c.initializeSimulation,
		abi.OpCalculateDt:           &c.calculateDt,
		abi.OpIsFinished:            &c.isFinished,
		abi.OpStep:                  &c.step,
		abi.OpFinalizeSimulation:    &c.finalizeSimulation,
		abi.OpNDims:                 &c.ndims,
		abi.OpNElements:             &c.nelements,
		abi.OpNElementsGlobal:       &c.nelementsGlobal,
		abi.OpNDofs:                 &c.ndofs,
		abi.OpNDofsGlobal:           &c.ndofsGlobal,
		abi.OpNDofsElement:          &c.ndofsElement,
		abi.OpNVariables:            &c.nvariables,
		abi.OpLoadCellAverages:      &c.loadCellAverages,
		abi.OpLoadPrimitive:         &c.loadPrimitive,
		abi.OpLoadNodeCoordinates:   &c.loadNodeCoordinates,
		abi.OpStoreInDatabase:       &c.storeInDatabase,
		abi.OpGetTime:               &c.getTime,
		abi.OpGetForest:             &c.getForest,
		abi.OpVersionSolver:         &c.versionSolver,
		abi.OpVersionSolverExtended: &c.versionSolverExtended,
		abi.OpEvalCode:              &c.evalCode,
	}
}

// resolveCalls binds the full contract against a live instance. Every
// export must exist with the exact core signature; one gap fails the
// whole bootstrap.
func resolveCalls(inst *engine.Instance) (*guestCalls, error) {
	ops, err := abi.Operations()
	if err != nil {
		return nil, err
	}

	c := &guestCalls{}
	slots := c.slots()
	if len(slots) != int(abi.NumOps) {
		return nil, errors.InvalidInput(errors.PhaseResolve, "binding table incomplete")
	}

	for _, o := range ops {
		fn := inst.Function(o.Export)
		if fn == nil {
			return nil, errors.NotFound(errors.PhaseResolve, "solver export", o.Export)
		}
		if err := o.ValidateDefinition(fn.Definition()); err != nil {
			return nil, err
		}
		*slots[o.Op] = guestFn{name: o.Name, fn: fn}
	}
	return c, nil
}
