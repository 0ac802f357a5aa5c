package bridge_test

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/riptide-sim/riptide"
	"github.com/riptide-sim/riptide/bridge"
	"github.com/riptide-sim/riptide/errors"
	"github.com/riptide-sim/riptide/internal/solvertest"
	"github.com/riptide-sim/riptide/internal/wasmenc"
	"github.com/riptide-sim/riptide/project"
)

// newRuntime boots a runtime against a throwaway solver project. The
// depot and module environment variables are cleared so activation
// cannot observe state from the host or from earlier tests.
func newRuntime(t *testing.T, cfg bridge.Config) *bridge.Runtime {
	t.Helper()

	t.Setenv(project.EnvDepotPath, "")
	t.Setenv(project.EnvModule, "")
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = solvertest.WriteProject(t)
	}

	rt := bridge.New(cfg)
	if err := rt.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { rt.Finalize(context.Background()) })
	return rt
}

func startSim(t *testing.T, rt *bridge.Runtime) riptide.Handle {
	t.Helper()
	sim, err := rt.InitializeSimulation(context.Background(), "scenarios/wave.toml")
	if err != nil {
		t.Fatalf("InitializeSimulation failed: %v", err)
	}
	return sim
}

func TestRuntime_LibraryVersion(t *testing.T) {
	// Answerable without Initialize.
	rt := bridge.New(bridge.Config{})
	if got, want := rt.Version(), riptide.Version(); got != want {
		t.Errorf("Version() = %q, want %q", got, want)
	}
	if rt.VersionMajor() != riptide.VersionMajor ||
		rt.VersionMinor() != riptide.VersionMinor ||
		rt.VersionPatch() != riptide.VersionPatch {
		t.Errorf("version components = %d.%d.%d, want %d.%d.%d",
			rt.VersionMajor(), rt.VersionMinor(), rt.VersionPatch(),
			riptide.VersionMajor, riptide.VersionMinor, riptide.VersionPatch)
	}
}

func TestRuntime_SolverVersion(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})

	got, err := rt.SolverVersion()
	if err != nil {
		t.Fatalf("SolverVersion failed: %v", err)
	}
	if got != solvertest.Version {
		t.Errorf("SolverVersion = %q, want %q", got, solvertest.Version)
	}

	ext, err := rt.SolverVersionExtended()
	if err != nil {
		t.Fatalf("SolverVersionExtended failed: %v", err)
	}
	if ext != solvertest.VersionExtended {
		t.Errorf("SolverVersionExtended = %q, want %q", ext, solvertest.VersionExtended)
	}
}

func TestRuntime_SolverVersion_RequiresInitialize(t *testing.T) {
	rt := bridge.New(bridge.Config{})
	_, err := rt.SolverVersion()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindNotInitialized}) {
		t.Fatalf("SolverVersion before Initialize = %v, want not-initialized", err)
	}
}

func TestRuntime_Initialize_Twice(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	err := rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBootstrap, Kind: errors.KindAlreadyInitialized}) {
		t.Fatalf("second Initialize = %v, want already-initialized", err)
	}
}

func TestRuntime_Finalize_BeforeInitialize(t *testing.T) {
	rt := bridge.New(bridge.Config{})
	err := rt.Finalize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseTeardown, Kind: errors.KindNotInitialized}) {
		t.Fatalf("Finalize before Initialize = %v, want not-initialized", err)
	}
}

func TestRuntime_Finalize_Twice(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()

	if err := rt.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	err := rt.Finalize(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseTeardown, Kind: errors.KindFinalized}) {
		t.Fatalf("second Finalize = %v, want finalized", err)
	}
}

func TestRuntime_Initialize_AfterFinalize(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()

	if err := rt.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	// The lifecycle is monotonic; a finalized runtime cannot come back.
	err := rt.Initialize(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBootstrap, Kind: errors.KindAlreadyInitialized}) {
		t.Fatalf("Initialize after Finalize = %v, want already-initialized", err)
	}
}

func TestRuntime_Dispatch_BeforeInitialize(t *testing.T) {
	rt := bridge.New(bridge.Config{})
	err := rt.Step(context.Background(), 0)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindNotInitialized}) {
		t.Fatalf("Step before Initialize = %v, want not-initialized", err)
	}
}

func TestRuntime_Dispatch_AfterFinalize(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	if err := rt.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	wantErr := &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindFinalized}
	tests := []struct {
		name string
		call func() error
	}{
		{"Step", func() error { return rt.Step(ctx, sim) }},
		{"SolverVersion", func() error { _, err := rt.SolverVersion(); return err }},
		{"InitializeSimulation", func() error {
			_, err := rt.InitializeSimulation(ctx, "scenarios/wave.toml")
			return err
		}},
		{"CalculateDt", func() error { _, err := rt.CalculateDt(ctx, sim); return err }},
		{"LoadCellAverages", func() error {
			return rt.LoadCellAverages(ctx, sim, 0, make([]float64, solvertest.NElements))
		}},
		{"GetForest", func() error { _, err := rt.GetForest(ctx, sim); return err }},
		{"EvalCode", func() error { return rt.EvalCode(ctx, "1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !stderrors.Is(err, wantErr) {
				t.Errorf("%s after Finalize = %v, want finalized", tt.name, err)
			}
		})
	}

	// Library version queries keep answering.
	if got, want := rt.Version(), riptide.Version(); got != want {
		t.Errorf("Version() after Finalize = %q, want %q", got, want)
	}
}

func TestRuntime_Initialize_FailureIsRetryable(t *testing.T) {
	t.Setenv(project.EnvDepotPath, "")
	t.Setenv(project.EnvModule, "")

	dir := t.TempDir()
	rt := bridge.New(bridge.Config{ProjectDir: dir})
	ctx := context.Background()

	// No solver module yet, so activation fails.
	err := rt.Initialize(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseProject, Kind: errors.KindNotFound}) {
		t.Fatalf("Initialize without module = %v, want project not-found", err)
	}

	solvertest.WriteModule(t, dir)
	if err := rt.Initialize(ctx); err != nil {
		t.Fatalf("Initialize retry failed: %v", err)
	}
	t.Cleanup(func() { rt.Finalize(ctx) })

	if _, err := rt.SolverVersion(); err != nil {
		t.Errorf("SolverVersion after retried Initialize failed: %v", err)
	}
}

func TestRuntime_Initialize_MissingExport(t *testing.T) {
	t.Setenv(project.EnvDepotPath, "")
	t.Setenv(project.EnvModule, "")

	// A well-formed module that exports none of the solver functions.
	m := wasmenc.NewModule()
	m.SetMemory(1, 1)
	m.ExportMemory("memory")
	idx := m.AddFunc(wasmenc.FuncType{}, nil, wasmenc.NewBody().Finish())
	m.ExportFunc("unrelated", idx)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "solver.wasm"), m.Encode(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rt := bridge.New(bridge.Config{ProjectDir: dir})
	err := rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindNotFound}) {
		t.Fatalf("Initialize = %v, want resolve not-found", err)
	}
}

func TestRuntime_Initialize_SignatureMismatch(t *testing.T) {
	t.Setenv(project.EnvDepotPath, "")
	t.Setenv(project.EnvModule, "")

	// Exports the first solver function under the right name but with a
	// nullary signature.
	m := wasmenc.NewModule()
	m.SetMemory(1, 1)
	m.ExportMemory("memory")
	idx := m.AddFunc(wasmenc.FuncType{}, nil, wasmenc.NewBody().Finish())
	m.ExportFunc("initialize_simulation", idx)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "solver.wasm"), m.Encode(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rt := bridge.New(bridge.Config{ProjectDir: dir})
	err := rt.Initialize(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindSignatureMismatch}) {
		t.Fatalf("Initialize = %v, want signature mismatch", err)
	}
}

func TestRuntime_SimulationLoop(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	dt, err := rt.CalculateDt(ctx, sim)
	if err != nil {
		t.Fatalf("CalculateDt failed: %v", err)
	}
	if dt != solvertest.Dt {
		t.Errorf("CalculateDt = %v, want %v", dt, solvertest.Dt)
	}

	steps := 0
	for {
		done, err := rt.IsFinished(ctx, sim)
		if err != nil {
			t.Fatalf("IsFinished failed: %v", err)
		}
		if done {
			break
		}
		if err := rt.Step(ctx, sim); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		steps++
		if steps > solvertest.FinishSteps+1 {
			t.Fatalf("simulation not finished after %d steps", steps)
		}
	}
	if steps != solvertest.FinishSteps {
		t.Errorf("finished after %d steps, want %d", steps, solvertest.FinishSteps)
	}

	tm, err := rt.Time(ctx, sim)
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if want := solvertest.Time(solvertest.FinishSteps); tm != want {
		t.Errorf("Time = %v, want %v", tm, want)
	}

	if err := rt.FinalizeSimulation(ctx, sim); err != nil {
		t.Fatalf("FinalizeSimulation failed: %v", err)
	}
}

func TestRuntime_TwoSimulations(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()

	first := startSim(t, rt)
	second := startSim(t, rt)
	if first == second {
		t.Fatalf("both simulations share handle %d", first)
	}

	// Stepping one simulation leaves the other's clock alone.
	for i := 0; i < 3; i++ {
		if err := rt.Step(ctx, first); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	tm, err := rt.Time(ctx, first)
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if want := solvertest.Time(3); tm != want {
		t.Errorf("Time(first) = %v, want %v", tm, want)
	}
	tm, err = rt.Time(ctx, second)
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if tm != 0 {
		t.Errorf("Time(second) = %v, want 0", tm)
	}
}

func TestRuntime_ScalarQueries(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	tests := []struct {
		name string
		call func(context.Context, riptide.Handle) (int32, error)
		want int32
	}{
		{"NDims", rt.NDims, solvertest.NDims},
		{"NElements", rt.NElements, solvertest.NElements},
		{"NElementsGlobal", rt.NElementsGlobal, solvertest.NElementsGlobal},
		{"NDofs", rt.NDofs, solvertest.NDofs},
		{"NDofsGlobal", rt.NDofsGlobal, solvertest.NDofsGlobal},
		{"NDofsElement", rt.NDofsElement, solvertest.NDofsElement},
		{"NVariables", rt.NVariables, solvertest.NVariables},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call(ctx, sim)
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}

	local, err := rt.NElements(ctx, sim)
	if err != nil {
		t.Fatalf("NElements failed: %v", err)
	}
	global, err := rt.NElementsGlobal(ctx, sim)
	if err != nil {
		t.Fatalf("NElementsGlobal failed: %v", err)
	}
	if local > global {
		t.Errorf("NElements %d exceeds NElementsGlobal %d", local, global)
	}
}

func TestRuntime_LoadCellAverages(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	out := make([]float64, solvertest.NElements)
	if err := rt.LoadCellAverages(ctx, sim, 1, out); err != nil {
		t.Fatalf("LoadCellAverages failed: %v", err)
	}
	for i, got := range out {
		if want := solvertest.CellAverage(1, i); got != want {
			t.Errorf("out[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestRuntime_LoadCellAverages_EmptyBuffer(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	sim := startSim(t, rt)

	err := rt.LoadCellAverages(context.Background(), sim, 0, nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindInvalidInput}) {
		t.Fatalf("LoadCellAverages with nil buffer = %v, want invalid-input", err)
	}
}

func TestRuntime_LoadPrimitive(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	out := make([]float64, solvertest.NDofs)
	if err := rt.LoadPrimitive(ctx, sim, 0, out); err != nil {
		t.Fatalf("LoadPrimitive failed: %v", err)
	}
	for i, got := range out {
		if want := solvertest.Primitive(0, i); got != want {
			t.Errorf("out[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestRuntime_LoadNodeCoordinates(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	out := make([]float64, solvertest.CoordCount)
	if err := rt.LoadNodeCoordinates(ctx, sim, out); err != nil {
		t.Fatalf("LoadNodeCoordinates failed: %v", err)
	}
	for _, i := range []int{0, 1, solvertest.NDofs, solvertest.CoordCount - 1} {
		if want := solvertest.NodeCoordinate(i); out[i] != want {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestRuntime_DatabaseRoundTrip(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()
	sim := startSim(t, rt)

	data := make([]float64, solvertest.DatabaseSlotLen)
	for i := range data {
		data[i] = 3.5 + float64(i)
	}
	const slot = int32(2)
	if err := rt.StoreInDatabase(ctx, sim, slot, data); err != nil {
		t.Fatalf("StoreInDatabase failed: %v", err)
	}

	out := make([]float64, solvertest.DatabaseSlotLen)
	if err := rt.LoadPrimitive(ctx, sim, solvertest.DatabaseIndexBase+slot, out); err != nil {
		t.Fatalf("LoadPrimitive failed: %v", err)
	}
	for i, got := range out {
		if got != data[i] {
			t.Errorf("out[%d] = %v, want %v", i, got, data[i])
		}
	}
}

func TestRuntime_GetForest(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	sim := startSim(t, rt)

	forest, err := rt.GetForest(context.Background(), sim)
	if err != nil {
		t.Fatalf("GetForest failed: %v", err)
	}
	if want := riptide.Forest(solvertest.Forest(int32(sim))); forest != want {
		t.Errorf("GetForest = %#x, want %#x", forest, want)
	}
}

func TestRuntime_EvalCode(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()

	if err := rt.EvalCode(ctx, `print("riptide")`); err != nil {
		t.Fatalf("EvalCode failed: %v", err)
	}

	err := rt.EvalCode(ctx, solvertest.EvalTrapToken+"boom()")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindGuestTrap}) {
		t.Fatalf("EvalCode = %v, want guest trap", err)
	}

	// Traps surface as errors without poisoning the runtime.
	if err := rt.EvalCode(ctx, "1 + 1"); err != nil {
		t.Fatalf("EvalCode after trap failed: %v", err)
	}
}

func TestRuntime_InitializeSimulation_EmptyScenario(t *testing.T) {
	rt := newRuntime(t, bridge.Config{})
	ctx := context.Background()

	_, err := rt.InitializeSimulation(ctx, "")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindGuestTrap}) {
		t.Fatalf("InitializeSimulation(\"\") = %v, want guest trap", err)
	}

	// The runtime stays usable.
	startSim(t, rt)
}

func TestRuntime_DepotCache(t *testing.T) {
	t.Setenv(project.EnvDepotPath, "")
	t.Setenv(project.EnvModule, "")

	depot := t.TempDir()
	rt := bridge.New(bridge.Config{
		ProjectDir: solvertest.WriteProject(t),
		DepotPath:  depot,
	})
	ctx := context.Background()
	if err := rt.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { rt.Finalize(ctx) })

	if got := os.Getenv(project.EnvDepotPath); got != depot {
		t.Errorf("%s = %q, want %q", project.EnvDepotPath, got, depot)
	}
	entries, err := os.ReadDir(depot)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("depot is empty after Initialize; expected compiled artifacts")
	}
}
