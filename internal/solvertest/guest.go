package solvertest

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide/abi"
	"github.com/riptide-sim/riptide/internal/wasmenc"
)

// Guest memory layout. Per-simulation step counters and teardown flags
// live in small i32 arrays; the database region holds DatabaseSlots
// slots of DatabaseSlotLen doubles; the bump allocator hands out bytes
// from heapBase upward.
const (
	versionAddr    = 0x0100
	versionExtAddr = 0x0180
	stepsAddr      = 0x0200
	doneAddr       = 0x0240
	databaseAddr   = 0x10000
	heapBase       = 0x20000
)

func build() ([]byte, error) {
	m := wasmenc.NewModule()
	m.SetMemory(4, 16)

	gNextSim := m.AddGlobalI32(true, 0)
	gHeap := m.AddGlobalI32(true, heapBase)
	gEvals := m.AddGlobalI32(true, 0)

	m.ExportMemory(abi.ExportMemory)
	m.AddData(versionAddr, append([]byte(Version), 0))
	m.AddData(versionExtAddr, append([]byte(VersionExtended), 0))

	addOp := func(op abi.Op, locals []wasmenc.ValType, body []byte) error {
		o, err := abi.Lookup(op)
		if err != nil {
			return err
		}
		idx := m.AddFunc(coreSig(o.CoreParams, o.CoreResults), locals, body)
		m.ExportFunc(o.Export, idx)
		return nil
	}

	i32 := []wasmenc.ValType{wasmenc.ValI32}

	type entry struct {
		op     abi.Op
		locals []wasmenc.ValType
		body   []byte
	}
	entries := []entry{
		{abi.OpInitializeSimulation, i32, initializeSimulationBody(gNextSim)},
		{abi.OpCalculateDt, nil, f64ConstBody(Dt)},
		{abi.OpIsFinished, nil, isFinishedBody()},
		{abi.OpStep, i32, stepBody()},
		{abi.OpFinalizeSimulation, nil, finalizeSimulationBody()},
		{abi.OpNDims, nil, i32ConstBody(NDims)},
		{abi.OpNElements, nil, i32ConstBody(NElements)},
		{abi.OpNElementsGlobal, nil, i32ConstBody(NElementsGlobal)},
		{abi.OpNDofs, nil, i32ConstBody(NDofs)},
		{abi.OpNDofsGlobal, nil, i32ConstBody(NDofsGlobal)},
		{abi.OpNDofsElement, nil, i32ConstBody(NDofsElement)},
		{abi.OpNVariables, nil, i32ConstBody(NVariables)},
		{abi.OpLoadCellAverages, i32, loadCellAveragesBody()},
		{abi.OpLoadPrimitive, []wasmenc.ValType{wasmenc.ValI32, wasmenc.ValI32}, loadPrimitiveBody()},
		{abi.OpLoadNodeCoordinates, i32, loadNodeCoordinatesBody()},
		{abi.OpStoreInDatabase, []wasmenc.ValType{wasmenc.ValI32, wasmenc.ValI32}, storeInDatabaseBody()},
		{abi.OpGetTime, nil, getTimeBody()},
		{abi.OpGetForest, nil, getForestBody()},
		{abi.OpVersionSolver, nil, i32ConstBody(versionAddr)},
		{abi.OpVersionSolverExtended, nil, i32ConstBody(versionExtAddr)},
		{abi.OpEvalCode, nil, evalCodeBody(gEvals)},
	}
	for _, e := range entries {
		if err := addOp(e.op, e.locals, e.body); err != nil {
			return nil, err
		}
	}

	allocIdx := m.AddFunc(
		wasmenc.FuncType{Params: i32, Results: i32},
		i32,
		allocBody(gHeap),
	)
	m.ExportFunc(abi.ExportAlloc, allocIdx)

	freeIdx := m.AddFunc(wasmenc.FuncType{Params: i32}, nil, emptyBody())
	m.ExportFunc(abi.ExportFree, freeIdx)

	return m.Encode(), nil
}

func coreSig(params, results []api.ValueType) wasmenc.FuncType {
	var t wasmenc.FuncType
	for _, p := range params {
		t.Params = append(t.Params, coreValType(p))
	}
	for _, r := range results {
		t.Results = append(t.Results, coreValType(r))
	}
	return t
}

func coreValType(t api.ValueType) wasmenc.ValType {
	switch t {
	case api.ValueTypeI32:
		return wasmenc.ValI32
	case api.ValueTypeI64:
		return wasmenc.ValI64
	case api.ValueTypeF32:
		return wasmenc.ValF32
	default:
		return wasmenc.ValF64
	}
}

func i32ConstBody(v int32) []byte {
	b := wasmenc.NewBody()
	b.I32Const(v)
	return b.Finish()
}

func f64ConstBody(v float64) []byte {
	b := wasmenc.NewBody()
	b.F64Const(v)
	return b.Finish()
}

func emptyBody() []byte {
	return wasmenc.NewBody().Finish()
}

// initializeSimulationBody allocates the next handle and zeroes its
// counters. An empty scenario traps, which is the guest failure path
// tests lean on. Params: ptr, len. Local 2: handle.
func initializeSimulationBody(gNextSim uint32) []byte {
	b := wasmenc.NewBody()
	b.LocalGet(1)
	b.Op(wasmenc.OpI32Eqz)
	b.If(wasmenc.BlockVoid)
	b.Op(wasmenc.OpUnreachable)
	b.End()

	b.GlobalGet(gNextSim)
	b.LocalSet(2)
	b.LocalGet(2)
	b.I32Const(1)
	b.Op(wasmenc.OpI32Add)
	b.GlobalSet(gNextSim)

	b.LocalGet(2)
	b.I32Const(4)
	b.Op(wasmenc.OpI32Mul)
	b.I32Const(0)
	b.Mem(wasmenc.OpI32Store, 2, stepsAddr)

	b.LocalGet(2)
	b.I32Const(4)
	b.Op(wasmenc.OpI32Mul)
	b.I32Const(0)
	b.Mem(wasmenc.OpI32Store, 2, doneAddr)

	b.LocalGet(2)
	return b.Finish()
}

// stepsSlot pushes the byte offset of the step counter for the handle
// in local h.
func stepsSlot(b *wasmenc.Body, h uint32) {
	b.LocalGet(h)
	b.I32Const(4)
	b.Op(wasmenc.OpI32Mul)
}

func isFinishedBody() []byte {
	b := wasmenc.NewBody()
	stepsSlot(b, 0)
	b.Mem(wasmenc.OpI32Load, 2, stepsAddr)
	b.I32Const(FinishSteps)
	b.Op(wasmenc.OpI32GeS)
	return b.Finish()
}

// stepBody increments the step counter. Local 1: slot offset.
func stepBody() []byte {
	b := wasmenc.NewBody()
	stepsSlot(b, 0)
	b.LocalSet(1)
	b.LocalGet(1)
	b.LocalGet(1)
	b.Mem(wasmenc.OpI32Load, 2, stepsAddr)
	b.I32Const(1)
	b.Op(wasmenc.OpI32Add)
	b.Mem(wasmenc.OpI32Store, 2, stepsAddr)
	return b.Finish()
}

func finalizeSimulationBody() []byte {
	b := wasmenc.NewBody()
	stepsSlot(b, 0)
	b.I32Const(1)
	b.Mem(wasmenc.OpI32Store, 2, doneAddr)
	return b.Finish()
}

func getTimeBody() []byte {
	b := wasmenc.NewBody()
	stepsSlot(b, 0)
	b.Mem(wasmenc.OpI32Load, 2, stepsAddr)
	b.Op(wasmenc.OpF64ConvertI32S)
	b.F64Const(Dt)
	b.Op(wasmenc.OpF64Mul)
	return b.Finish()
}

func getForestBody() []byte {
	b := wasmenc.NewBody()
	b.I32Const(0xF0)
	b.LocalGet(0)
	b.Op(wasmenc.OpI32Add)
	return b.Finish()
}

// fillLoop writes count doubles to the address in local dst. pushValue
// must leave one f64 on the stack for the index held in local i.
func fillLoop(b *wasmenc.Body, dst, i uint32, count int32, pushValue func(*wasmenc.Body)) {
	b.I32Const(0)
	b.LocalSet(i)
	b.Loop(wasmenc.BlockVoid)

	b.LocalGet(dst)
	b.LocalGet(i)
	b.I32Const(8)
	b.Op(wasmenc.OpI32Mul)
	b.Op(wasmenc.OpI32Add)
	pushValue(b)
	b.Mem(wasmenc.OpF64Store, 3, 0)

	b.LocalGet(i)
	b.I32Const(1)
	b.Op(wasmenc.OpI32Add)
	b.LocalSet(i)
	b.LocalGet(i)
	b.I32Const(count)
	b.Op(wasmenc.OpI32LtS)
	b.BrIf(0)

	b.End()
}

// loadCellAveragesBody fills NElements doubles with index*1000+i.
// Params: data, index, handle. Local 3: loop counter.
func loadCellAveragesBody() []byte {
	b := wasmenc.NewBody()
	fillLoop(b, 0, 3, NElements, func(b *wasmenc.Body) {
		b.LocalGet(1)
		b.I32Const(1000)
		b.Op(wasmenc.OpI32Mul)
		b.LocalGet(3)
		b.Op(wasmenc.OpI32Add)
		b.Op(wasmenc.OpF64ConvertI32S)
	})
	return b.Finish()
}

// loadPrimitiveBody fills NDofs doubles. Indexes below DatabaseIndexBase
// produce index*1000+i+0.25; higher indexes copy the stored database
// slot back out. Params: data, index, handle. Locals: 3 counter, 4 slot
// base offset.
func loadPrimitiveBody() []byte {
	b := wasmenc.NewBody()
	b.LocalGet(1)
	b.I32Const(DatabaseIndexBase)
	b.Op(wasmenc.OpI32GeS)
	b.If(wasmenc.BlockVoid)

	b.LocalGet(1)
	b.I32Const(DatabaseIndexBase)
	b.Op(wasmenc.OpI32Sub)
	b.I32Const(DatabaseSlotLen * 8)
	b.Op(wasmenc.OpI32Mul)
	b.LocalSet(4)
	fillLoop(b, 0, 3, NDofs, func(b *wasmenc.Body) {
		b.LocalGet(4)
		b.LocalGet(3)
		b.I32Const(8)
		b.Op(wasmenc.OpI32Mul)
		b.Op(wasmenc.OpI32Add)
		b.Mem(wasmenc.OpF64Load, 3, databaseAddr)
	})

	b.Else()

	fillLoop(b, 0, 3, NDofs, func(b *wasmenc.Body) {
		b.LocalGet(1)
		b.I32Const(1000)
		b.Op(wasmenc.OpI32Mul)
		b.LocalGet(3)
		b.Op(wasmenc.OpI32Add)
		b.Op(wasmenc.OpF64ConvertI32S)
		b.F64Const(0.25)
		b.Op(wasmenc.OpF64Add)
	})

	b.End()
	return b.Finish()
}

// loadNodeCoordinatesBody fills CoordCount doubles with i*0.125.
// Params: handle, data. Local 2: loop counter.
func loadNodeCoordinatesBody() []byte {
	b := wasmenc.NewBody()
	fillLoop(b, 1, 2, CoordCount, func(b *wasmenc.Body) {
		b.LocalGet(2)
		b.Op(wasmenc.OpF64ConvertI32S)
		b.F64Const(0.125)
		b.Op(wasmenc.OpF64Mul)
	})
	return b.Finish()
}

// storeInDatabaseBody copies size doubles from the data pointer into the
// database slot at index. Params: handle, index, size, data. Locals:
// 4 counter, 5 slot base offset.
func storeInDatabaseBody() []byte {
	b := wasmenc.NewBody()
	b.LocalGet(2)
	b.I32Const(0)
	b.Op(wasmenc.OpI32LeS)
	b.If(wasmenc.BlockVoid)
	b.Op(wasmenc.OpReturn)
	b.End()

	b.LocalGet(1)
	b.I32Const(DatabaseSlotLen * 8)
	b.Op(wasmenc.OpI32Mul)
	b.LocalSet(5)

	b.I32Const(0)
	b.LocalSet(4)
	b.Loop(wasmenc.BlockVoid)

	b.LocalGet(5)
	b.LocalGet(4)
	b.I32Const(8)
	b.Op(wasmenc.OpI32Mul)
	b.Op(wasmenc.OpI32Add)
	b.LocalGet(3)
	b.LocalGet(4)
	b.I32Const(8)
	b.Op(wasmenc.OpI32Mul)
	b.Op(wasmenc.OpI32Add)
	b.Mem(wasmenc.OpF64Load, 3, 0)
	b.Mem(wasmenc.OpF64Store, 3, databaseAddr)

	b.LocalGet(4)
	b.I32Const(1)
	b.Op(wasmenc.OpI32Add)
	b.LocalSet(4)
	b.LocalGet(4)
	b.LocalGet(2)
	b.Op(wasmenc.OpI32LtS)
	b.BrIf(0)

	b.End()
	return b.Finish()
}

// evalCodeBody traps when the source starts with EvalTrapToken and
// otherwise bumps the evaluation counter. Params: ptr, len.
func evalCodeBody(gEvals uint32) []byte {
	b := wasmenc.NewBody()
	b.LocalGet(1)
	b.I32Const(0)
	b.Op(wasmenc.OpI32GtS)
	b.If(wasmenc.BlockVoid)
	b.LocalGet(0)
	b.Mem(wasmenc.OpI32Load8U, 0, 0)
	b.I32Const(int32(EvalTrapToken[0]))
	b.Op(wasmenc.OpI32Eq)
	b.If(wasmenc.BlockVoid)
	b.Op(wasmenc.OpUnreachable)
	b.End()
	b.End()

	b.GlobalGet(gEvals)
	b.I32Const(1)
	b.Op(wasmenc.OpI32Add)
	b.GlobalSet(gEvals)
	return b.Finish()
}

// allocBody bumps the heap pointer by size rounded up to 8 bytes.
// Param: size. Local 1: previous heap pointer.
func allocBody(gHeap uint32) []byte {
	b := wasmenc.NewBody()
	b.GlobalGet(gHeap)
	b.LocalSet(1)
	b.LocalGet(1)
	b.LocalGet(0)
	b.I32Const(7)
	b.Op(wasmenc.OpI32Add)
	b.I32Const(-8)
	b.Op(wasmenc.OpI32And)
	b.Op(wasmenc.OpI32Add)
	b.GlobalSet(gHeap)
	b.LocalGet(1)
	return b.Finish()
}
