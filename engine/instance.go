package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/riptide-sim/riptide"
	"github.com/riptide-sim/riptide/errors"
)

// Instance is a running solver instance.
// It is NOT safe for concurrent use from multiple goroutines.
// Each goroutine should have its own Instance, or access must be synchronized externally.
type Instance struct {
	instance    api.Module
	memory      *Memory
	allocFn     api.Function
	freeFn      api.Function
	simpleAlloc bool
	funcCache   map[string]api.Function
	cacheMu     sync.RWMutex
	stackBuf    []uint64
	stackMu     sync.Mutex
}

// Function returns an exported function by name, or nil when the module
// does not export it. Lookups are cached.
func (i *Instance) Function(name string) api.Function {
	i.cacheMu.RLock()
	fn, ok := i.funcCache[name]
	i.cacheMu.RUnlock()
	if ok {
		return fn
	}

	fn = i.instance.ExportedFunction(name)
	i.cacheMu.Lock()
	i.funcCache[name] = fn
	i.cacheMu.Unlock()
	return fn
}

// Memory returns the instance's linear memory, or nil when the module
// declares none.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// MemorySize returns the current linear memory size in bytes, or 0 if no memory.
func (i *Instance) MemorySize() uint32 {
	if i.memory == nil {
		return 0
	}
	return i.memory.Size()
}

// Alloc reserves size bytes of guest memory and returns the pointer.
// Allocations are 8-byte aligned so staged float64 buffers are valid.
func (i *Instance) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if i.allocFn == nil {
		return 0, errors.AllocationFailed(size, nil)
	}

	i.stackMu.Lock()
	defer i.stackMu.Unlock()

	if i.simpleAlloc {
		i.stackBuf[0] = uint64(size)
		if err := i.allocFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
			return 0, errors.AllocationFailed(size, err)
		}
		return uint32(i.stackBuf[0]), nil
	}

	i.stackBuf[0] = 0 // original pointer
	i.stackBuf[1] = 0 // old size
	i.stackBuf[2] = 8 // align
	i.stackBuf[3] = uint64(size)
	if err := i.allocFn.CallWithStack(ctx, i.stackBuf[:4]); err != nil {
		return 0, errors.AllocationFailed(size, err)
	}
	return uint32(i.stackBuf[0]), nil
}

// Free releases a guest allocation. Modules without a free export accept
// the leak; their allocator reclaims everything when the instance closes.
func (i *Instance) Free(ctx context.Context, ptr, size uint32) error {
	if i.freeFn == nil || ptr == 0 {
		return nil
	}

	i.stackMu.Lock()
	defer i.stackMu.Unlock()

	argc := len(i.freeFn.Definition().ParamTypes())
	i.stackBuf[0] = uint64(ptr)
	i.stackBuf[1] = uint64(size)
	i.stackBuf[2] = 8 // align
	if argc > 3 {
		argc = 3
	}
	return i.freeFn.CallWithStack(ctx, i.stackBuf[:argc])
}

// WriteString stages s in guest memory and returns its pointer and
// length. The caller owns the allocation.
func (i *Instance) WriteString(ctx context.Context, s string) (uint32, uint32, error) {
	size := uint32(len(s))
	alloc := size
	if alloc == 0 {
		alloc = 1
	}
	ptr, err := i.Alloc(ctx, alloc)
	if err != nil {
		return 0, 0, err
	}
	if size > 0 {
		if err := i.memory.Write(ptr, []byte(s)); err != nil {
			i.Free(ctx, ptr, alloc)
			return 0, 0, err
		}
	}
	return ptr, size, nil
}

// WriteFloat64s stages data in guest memory and returns its pointer.
// The caller owns the allocation.
func (i *Instance) WriteFloat64s(ctx context.Context, data []float64) (uint32, error) {
	size := uint32(len(data)) * 8
	ptr, err := i.Alloc(ctx, size)
	if err != nil {
		return 0, err
	}
	if err := i.memory.WriteFloat64s(ptr, data); err != nil {
		i.Free(ctx, ptr, size)
		return 0, err
	}
	return ptr, nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	// Clear references to help GC
	i.funcCache = nil
	i.memory = nil
	i.allocFn = nil
	i.freeFn = nil
	i.stackBuf = nil
	return firstErr
}

// Compile-time check that Instance implements riptide.Allocator
var _ riptide.Allocator = (*Instance)(nil)
