package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/riptide-sim/riptide/engine"
	"github.com/riptide-sim/riptide/errors"
	"github.com/riptide-sim/riptide/project"
)

// Config describes one solver runtime. ProjectDir is required; the rest
// defaults sensibly.
type Config struct {
	// ProjectDir is the solver project to activate.
	ProjectDir string

	// DepotPath overrides the compiled-code depot. See project.Activate
	// for the precedence rules.
	DepotPath string

	// ModulePath overrides the solver module location.
	ModulePath string

	// MemoryLimitPages caps solver memory in 64KB pages. 0 keeps the
	// engine default.
	MemoryLimitPages uint32

	// Stdout and Stderr receive the solver's standard streams. Nil
	// routes them through the bridge logger.
	Stdout io.Writer
	Stderr io.Writer
}

// Runtime owns one loaded solver: the activated project, the engine, the
// instantiated module and the resolved binding table. Construct with New,
// boot with Initialize, release with Finalize.
//
// The lifecycle flags are monotonic. A Runtime can be initialized once
// and finalized once; after Finalize every call fails, including a
// second Finalize. Construct a fresh Runtime to load another solver.
//
// Runtime is safe for concurrent use; calls into the solver are
// serialized internally.
type Runtime struct {
	cfg Config

	mu          sync.Mutex
	initialized bool
	finalized   bool

	env      *project.Environment
	engine   *engine.Engine
	module   *engine.Module
	instance *engine.Instance
	calls    *guestCalls

	solverVersion    string
	solverVersionExt string
}

// New creates a runtime for the given configuration. No work happens
// until Initialize.
func New(cfg Config) *Runtime {
	return &Runtime{cfg: cfg}
}

// Initialize performs the one-time bootstrap: activate the project,
// start the engine with the depot as its compilation cache, instantiate
// the solver module, resolve the binding table, and capture the solver's
// version strings.
//
// A failed Initialize unwinds completely and leaves the runtime
// reusable; a successful one can never be repeated.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return errors.AlreadyInitialized()
	}

	env, err := project.Activate(r.cfg.ProjectDir, project.Options{
		DepotPath:  r.cfg.DepotPath,
		ModulePath: r.cfg.ModulePath,
	})
	if err != nil {
		return err
	}

	eng, err := engine.NewWithConfig(ctx, &engine.Config{
		CacheDir:         env.DepotPath,
		MemoryLimitPages: r.cfg.MemoryLimitPages,
	})
	if err != nil {
		return err
	}

	wasm, err := env.ReadModule()
	if err != nil {
		eng.Close(ctx)
		return err
	}

	mod, err := eng.Load(ctx, wasm)
	if err != nil {
		eng.Close(ctx)
		return err
	}

	stdout := r.cfg.Stdout
	if stdout == nil {
		stdout = &zapio.Writer{Log: Logger(), Level: zapcore.InfoLevel}
	}
	stderr := r.cfg.Stderr
	if stderr == nil {
		stderr = &zapio.Writer{Log: Logger(), Level: zapcore.WarnLevel}
	}

	inst, err := mod.Instantiate(ctx, &engine.InstanceConfig{
		Name:       "solver",
		ProjectDir: env.ProjectDir,
		Env:        env.Vars,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	if err != nil {
		eng.Close(ctx)
		return err
	}

	calls, err := resolveCalls(inst)
	if err != nil {
		eng.Close(ctx)
		return err
	}

	version, versionExt, err := readVersions(ctx, inst, calls)
	if err != nil {
		eng.Close(ctx)
		return err
	}

	r.env = env
	r.engine = eng
	r.module = mod
	r.instance = inst
	r.calls = calls
	r.solverVersion = version
	r.solverVersionExt = versionExt
	r.initialized = true

	Logger().Info("runtime initialized",
		zap.String("project", env.ProjectDir),
		zap.String("module", env.ModulePath),
		zap.String("solver_version", version))
	return nil
}

// Finalize shuts the solver down. The runtime stays finalized forever;
// even a repeated Finalize is an error.
func (r *Runtime) Finalize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return errors.NotInitialized(errors.PhaseTeardown, "Finalize")
	}
	if r.finalized {
		return errors.Finalized(errors.PhaseTeardown, "Finalize")
	}

	err := r.engine.Close(ctx)

	r.calls = nil
	r.instance = nil
	r.module = nil
	r.engine = nil
	r.env = nil
	r.finalized = true

	Logger().Info("runtime finalized")
	if err != nil {
		return errors.Wrap(errors.PhaseTeardown, errors.KindShutdown, err, "close engine")
	}
	return nil
}

// usable gates dispatch. Callers hold r.mu.
func (r *Runtime) usable(op string) error {
	if !r.initialized {
		return errors.NotInitialized(errors.PhaseDispatch, op)
	}
	if r.finalized {
		return errors.Finalized(errors.PhaseDispatch, op)
	}
	return nil
}

// freeQuiet releases a staged buffer; failures are logged, not returned,
// since the forwarded call already produced the caller's result.
func (r *Runtime) freeQuiet(ctx context.Context, ptr, size uint32) {
	if err := r.instance.Free(ctx, ptr, size); err != nil {
		Logger().Warn("free staged buffer",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// readVersions captures both solver version strings during bootstrap so
// later queries never re-enter the guest.
func readVersions(ctx context.Context, inst *engine.Instance, calls *guestCalls) (string, string, error) {
	version, err := readVersion(ctx, inst, calls.versionSolver)
	if err != nil {
		return "", "", err
	}
	versionExt, err := readVersion(ctx, inst, calls.versionSolverExtended)
	if err != nil {
		return "", "", err
	}
	return version, versionExt, nil
}

func readVersion(ctx context.Context, inst *engine.Instance, fn guestFn) (string, error) {
	res, err := fn.call(ctx)
	if err != nil {
		return "", err
	}
	s, err := inst.Memory().ReadCString(api.DecodeU32(res[0]))
	if err != nil {
		return "", err
	}
	return s, nil
}
