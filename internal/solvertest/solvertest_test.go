package solvertest_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide/internal/solvertest"
)

func instantiate(t *testing.T) api.Module {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })
	mod, err := r.Instantiate(ctx, solvertest.Module(t))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return mod
}

func call(t *testing.T, mod api.Module, name string, params ...uint64) []uint64 {
	t.Helper()
	fn := mod.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("export %q missing", name)
	}
	res, err := fn.Call(context.Background(), params...)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

// allocString copies s into guest memory and returns its pointer.
func allocString(t *testing.T, mod api.Module, s string) uint32 {
	t.Helper()
	res := call(t, mod, "alloc", api.EncodeI32(int32(len(s))))
	ptr := api.DecodeU32(res[0])
	if !mod.Memory().Write(ptr, []byte(s)) {
		t.Fatalf("write %d bytes at %#x", len(s), ptr)
	}
	return ptr
}

func newSim(t *testing.T, mod api.Module) int32 {
	t.Helper()
	scenario := "scenarios/wave.toml"
	ptr := allocString(t, mod, scenario)
	res := call(t, mod, "initialize_simulation", api.EncodeI32(int32(ptr)), api.EncodeI32(int32(len(scenario))))
	return api.DecodeI32(res[0])
}

func TestModule_Scalars(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	tests := []struct {
		export string
		want   int32
	}{
		{"ndims", solvertest.NDims},
		{"nelements", solvertest.NElements},
		{"nelements_global", solvertest.NElementsGlobal},
		{"ndofs", solvertest.NDofs},
		{"ndofs_global", solvertest.NDofsGlobal},
		{"ndofs_element", solvertest.NDofsElement},
		{"nvariables", solvertest.NVariables},
	}
	for _, tt := range tests {
		res := call(t, mod, tt.export, api.EncodeI32(h))
		if got := api.DecodeI32(res[0]); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.export, got, tt.want)
		}
	}
}

func TestModule_SimulationLifecycle(t *testing.T) {
	mod := instantiate(t)

	h0 := newSim(t, mod)
	h1 := newSim(t, mod)
	if h0 != 0 || h1 != 1 {
		t.Fatalf("handles = %d, %d, want 0, 1", h0, h1)
	}

	res := call(t, mod, "calculate_dt", api.EncodeI32(h0))
	if dt := api.DecodeF64(res[0]); dt != solvertest.Dt {
		t.Errorf("calculate_dt = %v, want %v", dt, solvertest.Dt)
	}

	for i := 0; i < 3; i++ {
		call(t, mod, "step", api.EncodeI32(h0))
	}
	res = call(t, mod, "get_time", api.EncodeI32(h0))
	if got, want := api.DecodeF64(res[0]), solvertest.Time(3); got != want {
		t.Errorf("get_time after 3 steps = %v, want %v", got, want)
	}

	res = call(t, mod, "is_finished", api.EncodeI32(h0))
	if api.DecodeI32(res[0]) != 0 {
		t.Error("is_finished true after 3 steps")
	}
	for i := 3; i < solvertest.FinishSteps; i++ {
		call(t, mod, "step", api.EncodeI32(h0))
	}
	res = call(t, mod, "is_finished", api.EncodeI32(h0))
	if api.DecodeI32(res[0]) != 1 {
		t.Error("is_finished false after the final step")
	}

	// The second simulation advances independently.
	res = call(t, mod, "get_time", api.EncodeI32(h1))
	if got := api.DecodeF64(res[0]); got != 0 {
		t.Errorf("get_time of untouched sim = %v, want 0", got)
	}

	call(t, mod, "finalize_simulation", api.EncodeI32(h0))
}

func TestModule_InitializeSimulation_EmptyScenarioTraps(t *testing.T) {
	mod := instantiate(t)
	fn := mod.ExportedFunction("initialize_simulation")
	if _, err := fn.Call(context.Background(), api.EncodeI32(0), api.EncodeI32(0)); err == nil {
		t.Fatal("expected trap for empty scenario")
	}
}

func TestModule_LoadCellAverages(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	res := call(t, mod, "alloc", api.EncodeI32(solvertest.NElements*8))
	ptr := api.DecodeU32(res[0])
	call(t, mod, "load_cell_averages", api.EncodeI32(int32(ptr)), api.EncodeI32(1), api.EncodeI32(h))

	for i := 0; i < solvertest.NElements; i++ {
		v, ok := mod.Memory().ReadFloat64Le(ptr + uint32(i)*8)
		if !ok {
			t.Fatalf("read element %d", i)
		}
		if want := solvertest.CellAverage(1, i); v != want {
			t.Errorf("element %d = %v, want %v", i, v, want)
		}
	}
}

func TestModule_LoadNodeCoordinates(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	res := call(t, mod, "alloc", api.EncodeI32(solvertest.CoordCount*8))
	ptr := api.DecodeU32(res[0])
	call(t, mod, "load_node_coordinates", api.EncodeI32(h), api.EncodeI32(int32(ptr)))

	for _, i := range []int{0, 1, 17, solvertest.CoordCount - 1} {
		v, ok := mod.Memory().ReadFloat64Le(ptr + uint32(i)*8)
		if !ok {
			t.Fatalf("read coordinate %d", i)
		}
		if want := solvertest.NodeCoordinate(i); v != want {
			t.Errorf("coordinate %d = %v, want %v", i, v, want)
		}
	}
}

func TestModule_DatabaseRoundTrip(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	const slot = 2
	res := call(t, mod, "alloc", api.EncodeI32(solvertest.DatabaseSlotLen*8))
	in := api.DecodeU32(res[0])
	for i := 0; i < solvertest.DatabaseSlotLen; i++ {
		mod.Memory().WriteFloat64Le(in+uint32(i)*8, 3.5+float64(i))
	}
	call(t, mod, "store_in_database",
		api.EncodeI32(h), api.EncodeI32(slot),
		api.EncodeI32(solvertest.DatabaseSlotLen), api.EncodeI32(int32(in)))

	res = call(t, mod, "alloc", api.EncodeI32(solvertest.NDofs*8))
	out := api.DecodeU32(res[0])
	call(t, mod, "load_primitive",
		api.EncodeI32(int32(out)), api.EncodeI32(solvertest.DatabaseIndexBase+slot), api.EncodeI32(h))

	for i := 0; i < solvertest.DatabaseSlotLen; i++ {
		v, ok := mod.Memory().ReadFloat64Le(out + uint32(i)*8)
		if !ok {
			t.Fatalf("read value %d", i)
		}
		if want := 3.5 + float64(i); v != want {
			t.Errorf("value %d = %v, want %v", i, v, want)
		}
	}
}

func TestModule_LoadPrimitive_Computed(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	res := call(t, mod, "alloc", api.EncodeI32(solvertest.NDofs*8))
	ptr := api.DecodeU32(res[0])
	call(t, mod, "load_primitive", api.EncodeI32(int32(ptr)), api.EncodeI32(0), api.EncodeI32(h))

	for _, i := range []int{0, 1, solvertest.NDofs - 1} {
		v, ok := mod.Memory().ReadFloat64Le(ptr + uint32(i)*8)
		if !ok {
			t.Fatalf("read dof %d", i)
		}
		if want := solvertest.Primitive(0, i); v != want {
			t.Errorf("dof %d = %v, want %v", i, v, want)
		}
	}
}

func TestModule_VersionStrings(t *testing.T) {
	mod := instantiate(t)

	readCString := func(addr uint32) string {
		var out []byte
		for {
			b, ok := mod.Memory().ReadByte(addr + uint32(len(out)))
			if !ok || b == 0 {
				return string(out)
			}
			out = append(out, b)
		}
	}

	res := call(t, mod, "version_solver")
	if got := readCString(api.DecodeU32(res[0])); got != solvertest.Version {
		t.Errorf("version_solver = %q, want %q", got, solvertest.Version)
	}
	res = call(t, mod, "version_solver_extended")
	if got := readCString(api.DecodeU32(res[0])); got != solvertest.VersionExtended {
		t.Errorf("version_solver_extended = %q, want %q", got, solvertest.VersionExtended)
	}
}

func TestModule_EvalCode(t *testing.T) {
	mod := instantiate(t)

	src := "u .= sin.(x)"
	ptr := allocString(t, mod, src)
	call(t, mod, "eval_code", api.EncodeI32(int32(ptr)), api.EncodeI32(int32(len(src))))

	bad := solvertest.EvalTrapToken + " marks the spot"
	ptr = allocString(t, mod, bad)
	fn := mod.ExportedFunction("eval_code")
	if _, err := fn.Call(context.Background(), api.EncodeI32(int32(ptr)), api.EncodeI32(int32(len(bad)))); err == nil {
		t.Fatal("expected trap for poisoned source")
	}
}

func TestModule_GetForest(t *testing.T) {
	mod := instantiate(t)
	h := newSim(t, mod)

	res := call(t, mod, "get_forest", api.EncodeI32(h))
	if got, want := api.DecodeU32(res[0]), solvertest.Forest(h); got != want {
		t.Errorf("get_forest = %#x, want %#x", got, want)
	}
}
