package bridge

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide"
	"github.com/riptide-sim/riptide/errors"
)

// VersionMajor reports the library major version. The library version
// queries answer at any point in the lifecycle.
func (r *Runtime) VersionMajor() int { return riptide.VersionMajor }

// VersionMinor reports the library minor version.
func (r *Runtime) VersionMinor() int { return riptide.VersionMinor }

// VersionPatch reports the library patch version.
func (r *Runtime) VersionPatch() int { return riptide.VersionPatch }

// Version reports the library version as "major.minor.patch".
func (r *Runtime) Version() string { return riptide.Version() }

// SolverVersion reports the loaded solver's version string, captured
// once during Initialize.
func (r *Runtime) SolverVersion() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("SolverVersion"); err != nil {
		return "", err
	}
	return r.solverVersion, nil
}

// SolverVersionExtended reports the solver's version string including
// its bundled components.
func (r *Runtime) SolverVersionExtended() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("SolverVersionExtended"); err != nil {
		return "", err
	}
	return r.solverVersionExt, nil
}

// InitializeSimulation sets up a simulation from a scenario file and
// returns its handle. The path is forwarded to the solver verbatim; the
// solver resolves it against the mounted project directory.
func (r *Runtime) InitializeSimulation(ctx context.Context, scenario string) (riptide.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("InitializeSimulation"); err != nil {
		return 0, err
	}

	ptr, size, err := r.instance.WriteString(ctx, scenario)
	if err != nil {
		return 0, err
	}
	defer r.freeQuiet(ctx, ptr, size)

	res, err := r.calls.initializeSimulation.call(ctx, uint64(ptr), uint64(size))
	if err != nil {
		return 0, err
	}
	return riptide.Handle(api.DecodeI32(res[0])), nil
}

// CalculateDt returns the time step size the solver would take next.
func (r *Runtime) CalculateDt(ctx context.Context, h riptide.Handle) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("CalculateDt"); err != nil {
		return 0, err
	}
	res, err := r.calls.calculateDt.call(ctx, api.EncodeI32(int32(h)))
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(res[0]), nil
}

// IsFinished reports whether the simulation reached its final time.
func (r *Runtime) IsFinished(ctx context.Context, h riptide.Handle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("IsFinished"); err != nil {
		return false, err
	}
	res, err := r.calls.isFinished.call(ctx, api.EncodeI32(int32(h)))
	if err != nil {
		return false, err
	}
	return api.DecodeI32(res[0]) != 0, nil
}

// Step advances the simulation by one time step.
func (r *Runtime) Step(ctx context.Context, h riptide.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("Step"); err != nil {
		return err
	}
	_, err := r.calls.step.call(ctx, api.EncodeI32(int32(h)))
	return err
}

// FinalizeSimulation tears the simulation down and invalidates its handle.
func (r *Runtime) FinalizeSimulation(ctx context.Context, h riptide.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("FinalizeSimulation"); err != nil {
		return err
	}
	_, err := r.calls.finalizeSimulation.call(ctx, api.EncodeI32(int32(h)))
	return err
}

// NDims returns the spatial dimension count.
func (r *Runtime) NDims(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NDims", h, func(c *guestCalls) guestFn { return c.ndims })
}

// NElements returns the local element count.
func (r *Runtime) NElements(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NElements", h, func(c *guestCalls) guestFn { return c.nelements })
}

// NElementsGlobal returns the element count across all ranks.
func (r *Runtime) NElementsGlobal(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NElementsGlobal", h, func(c *guestCalls) guestFn { return c.nelementsGlobal })
}

// NDofs returns the local degree-of-freedom count.
func (r *Runtime) NDofs(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NDofs", h, func(c *guestCalls) guestFn { return c.ndofs })
}

// NDofsGlobal returns the degree-of-freedom count across all ranks.
func (r *Runtime) NDofsGlobal(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NDofsGlobal", h, func(c *guestCalls) guestFn { return c.ndofsGlobal })
}

// NDofsElement returns the degrees of freedom per element.
func (r *Runtime) NDofsElement(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NDofsElement", h, func(c *guestCalls) guestFn { return c.ndofsElement })
}

// NVariables returns the conservative variable count.
func (r *Runtime) NVariables(ctx context.Context, h riptide.Handle) (int32, error) {
	return r.scalarQuery(ctx, "NVariables", h, func(c *guestCalls) guestFn { return c.nvariables })
}

// Time returns the current simulation time.
func (r *Runtime) Time(ctx context.Context, h riptide.Handle) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("Time"); err != nil {
		return 0, err
	}
	res, err := r.calls.getTime.call(ctx, api.EncodeI32(int32(h)))
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(res[0]), nil
}

// LoadCellAverages fills out with the cell averages of one variable.
// index selects the variable; out must hold NElements values.
func (r *Runtime) LoadCellAverages(ctx context.Context, h riptide.Handle, index int32, out []float64) error {
	return r.loadVariable(ctx, "LoadCellAverages", h, index, out, func(c *guestCalls) guestFn { return c.loadCellAverages })
}

// LoadPrimitive fills out with the pointwise values of one primitive
// variable. index selects the variable; out must hold NDofs values.
func (r *Runtime) LoadPrimitive(ctx context.Context, h riptide.Handle, index int32, out []float64) error {
	return r.loadVariable(ctx, "LoadPrimitive", h, index, out, func(c *guestCalls) guestFn { return c.loadPrimitive })
}

// LoadNodeCoordinates fills out with the physical coordinates of every
// node, one dimension after the other. out must hold NDims*NDofs values.
func (r *Runtime) LoadNodeCoordinates(ctx context.Context, h riptide.Handle, out []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("LoadNodeCoordinates"); err != nil {
		return err
	}
	if len(out) == 0 {
		return errEmptyBuffer("LoadNodeCoordinates")
	}

	size := uint32(len(out)) * 8
	ptr, err := r.instance.Alloc(ctx, size)
	if err != nil {
		return err
	}
	defer r.freeQuiet(ctx, ptr, size)

	if _, err := r.calls.loadNodeCoordinates.call(ctx, api.EncodeI32(int32(h)), uint64(ptr)); err != nil {
		return err
	}
	return r.instance.Memory().ReadFloat64s(ptr, out)
}

// StoreInDatabase hands data to the solver's per-simulation store at the
// given index. The store must already exist with capacity for index.
func (r *Runtime) StoreInDatabase(ctx context.Context, h riptide.Handle, index int32, data []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("StoreInDatabase"); err != nil {
		return err
	}

	size := uint32(len(data)) * 8
	ptr, err := r.instance.WriteFloat64s(ctx, data)
	if err != nil {
		return err
	}
	defer r.freeQuiet(ctx, ptr, size)

	_, err = r.calls.storeInDatabase.call(ctx,
		api.EncodeI32(int32(h)),
		api.EncodeI32(index),
		api.EncodeI32(int32(len(data))),
		uint64(ptr))
	return err
}

// GetForest exposes the solver's mesh forest as an opaque reference.
func (r *Runtime) GetForest(ctx context.Context, h riptide.Handle) (riptide.Forest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("GetForest"); err != nil {
		return 0, err
	}
	res, err := r.calls.getForest.call(ctx, api.EncodeI32(int32(h)))
	if err != nil {
		return 0, err
	}
	return riptide.Forest(api.DecodeU32(res[0])), nil
}

// EvalCode executes source text in the solver's evaluator. The text is
// forwarded unchecked; use for development and debugging only.
func (r *Runtime) EvalCode(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable("EvalCode"); err != nil {
		return err
	}

	ptr, size, err := r.instance.WriteString(ctx, source)
	if err != nil {
		return err
	}
	defer r.freeQuiet(ctx, ptr, size)

	_, err = r.calls.evalCode.call(ctx, uint64(ptr), uint64(size))
	return err
}

// scalarQuery runs one of the per-simulation counters. pick selects the
// binding under the lock, after the lifecycle guard.
func (r *Runtime) scalarQuery(ctx context.Context, op string, h riptide.Handle, pick func(*guestCalls) guestFn) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(op); err != nil {
		return 0, err
	}
	res, err := pick(r.calls).call(ctx, api.EncodeI32(int32(h)))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

// loadVariable stages a guest buffer, runs a (data, index, handle)
// export against it and copies the result back into out.
func (r *Runtime) loadVariable(ctx context.Context, op string, h riptide.Handle, index int32, out []float64, pick func(*guestCalls) guestFn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(op); err != nil {
		return err
	}
	if len(out) == 0 {
		return errEmptyBuffer(op)
	}

	size := uint32(len(out)) * 8
	ptr, err := r.instance.Alloc(ctx, size)
	if err != nil {
		return err
	}
	defer r.freeQuiet(ctx, ptr, size)

	if _, err := pick(r.calls).call(ctx, uint64(ptr), api.EncodeI32(index), api.EncodeI32(int32(h))); err != nil {
		return err
	}
	return r.instance.Memory().ReadFloat64s(ptr, out)
}

func errEmptyBuffer(op string) error {
	return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
		Op(op).
		Detail("output buffer is empty").
		Build()
}

// Compile-time check that Runtime implements riptide.Solver
var _ riptide.Solver = (*Runtime)(nil)
