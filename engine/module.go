package engine

import (
	"context"
	"io"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/riptide-sim/riptide/errors"
)

// Module is a compiled solver module.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// InstanceConfig holds configuration for module instantiation.
type InstanceConfig struct {
	Name string

	// ProjectDir is mounted at the guest root so the solver can read its
	// scenario files. Empty leaves the guest without a filesystem.
	ProjectDir string

	// Env is the guest environment. Keys are applied in sorted order so
	// instantiation is deterministic.
	Env map[string]string

	// Stdout and Stderr receive the guest's standard streams. Nil keeps
	// the runtime default of discarding them.
	Stdout io.Writer
	Stderr io.Writer
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate creates a running instance of the module.
func (m *Module) Instantiate(ctx context.Context, cfg *InstanceConfig) (*Instance, error) {
	if err := m.engine.InitWASI(ctx); err != nil {
		return nil, err
	}

	// No start functions: reactor modules are initialized explicitly
	// below so instantiation failures stay separable from guest errors.
	modConfig := wazero.NewModuleConfig().WithStartFunctions()
	if cfg != nil {
		if cfg.Name != "" {
			modConfig = modConfig.WithName(cfg.Name)
		} else {
			modConfig = modConfig.WithName("") // anonymous for parallel instantiation
		}
		if cfg.ProjectDir != "" {
			fs := wazero.NewFSConfig().WithDirMount(cfg.ProjectDir, "/")
			modConfig = modConfig.WithFSConfig(fs)
		}
		for _, key := range sortedKeys(cfg.Env) {
			modConfig = modConfig.WithEnv(key, cfg.Env[key])
		}
		if cfg.Stdout != nil {
			modConfig = modConfig.WithStdout(cfg.Stdout)
		}
		if cfg.Stderr != nil {
			modConfig = modConfig.WithStderr(cfg.Stderr)
		}
	} else {
		modConfig = modConfig.WithName("")
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if initFn := instance.ExportedFunction(initializeExport); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			instance.Close(ctx)
			return nil, errors.Load("run "+initializeExport, err)
		}
		Logger().Debug("reactor initialized", zap.String("module", instance.Name()))
	}

	inst := &Instance{
		instance:  instance,
		funcCache: make(map[string]api.Function),
		stackBuf:  make([]uint64, 8),
	}

	if mem := instance.Memory(); mem != nil {
		inst.memory = &Memory{mem: mem}
	}

	// Cache allocator - try standard cabi_realloc first, then fallbacks
	allocName := CabiRealloc
	allocFnDef := instance.ExportedFunctionDefinitions()[CabiRealloc]
	if allocFnDef == nil {
		allocName = legacyRealloc
		allocFnDef = instance.ExportedFunctionDefinitions()[legacyRealloc]
	}
	if allocFnDef == nil {
		allocName = legacyAlloc
		allocFnDef = instance.ExportedFunctionDefinitions()[legacyAlloc]
	}
	if allocFnDef == nil {
		allocName = simpleAlloc
		allocFnDef = instance.ExportedFunctionDefinitions()[simpleAlloc]
	}
	if allocFnDef != nil {
		inst.allocFn = instance.ExportedFunction(allocName)
		inst.simpleAlloc = len(allocFnDef.ParamTypes()) < 4
	}

	if freeFn := instance.ExportedFunction(CabiFree); freeFn != nil {
		inst.freeFn = freeFn
	} else if freeFn := instance.ExportedFunction(legacyDealloc); freeFn != nil {
		inst.freeFn = freeFn
	} else if freeFn := instance.ExportedFunction(simpleFree); freeFn != nil {
		inst.freeFn = freeFn
	}

	return inst, nil
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
