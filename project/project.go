// Package project activates a solver project directory: it fixes the
// depot location, loads the project's .env file, and locates the solver
// module. Activation happens once, before the runtime boots.
package project

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/riptide-sim/riptide/errors"
)

// Environment variable names honored during activation.
const (
	// EnvDepotPath points at the depot: the on-disk cache of compiled
	// solver code reused across runs.
	EnvDepotPath = "RIPTIDE_DEPOT_PATH"

	// EnvModule overrides the solver module location.
	EnvModule = "RIPTIDE_MODULE"
)

const (
	// defaultDepotDir is the depot directory created inside the project
	// when neither the caller nor the environment names one.
	defaultDepotDir = "riptide-depot"

	// defaultModuleName is the solver module file expected in the
	// project directory.
	defaultModuleName = "solver.wasm"

	envFileName = ".env"
)

// Options adjusts activation. Zero values defer to the environment and
// the project's defaults.
type Options struct {
	// DepotPath overrides the depot location. Takes precedence over the
	// environment variable.
	DepotPath string

	// ModulePath overrides the solver module location. Relative paths
	// resolve against the project directory.
	ModulePath string
}

// Environment is the result of activation: every path the runtime needs,
// plus the variables exported to the solver process.
type Environment struct {
	ProjectDir string
	DepotPath  string
	ModulePath string

	// Vars is the guest environment: the project's .env contents with
	// the depot path layered on top.
	Vars map[string]string
}

// Activate resolves the project directory into a runnable Environment.
//
// The depot is chosen with fixed precedence: an explicit Options.DepotPath
// wins; otherwise a pre-existing RIPTIDE_DEPOT_PATH is preserved as-is;
// otherwise the default directory inside the project is chosen. Whenever
// the choice did not come from the environment, the variable is exported
// so child tooling observes the same depot.
func Activate(projectDir string, opts Options) (*Environment, error) {
	if projectDir == "" {
		return nil, errors.InvalidInput(errors.PhaseProject, "project directory is empty")
	}

	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err,
			"resolve project directory "+projectDir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NotFound(errors.PhaseProject, "project directory", dir)
	}

	vars, err := readEnvFile(dir)
	if err != nil {
		return nil, err
	}

	depot, err := resolveDepot(dir, opts.DepotPath)
	if err != nil {
		return nil, err
	}
	vars[EnvDepotPath] = depot

	module, err := resolveModule(dir, vars, opts.ModulePath)
	if err != nil {
		return nil, err
	}

	Logger().Info("project activated",
		zap.String("dir", dir),
		zap.String("depot", depot),
		zap.String("module", module))

	return &Environment{
		ProjectDir: dir,
		DepotPath:  depot,
		ModulePath: module,
		Vars:       vars,
	}, nil
}

// ReadModule loads the solver module binary.
func (e *Environment) ReadModule() ([]byte, error) {
	data, err := os.ReadFile(e.ModulePath)
	if err != nil {
		return nil, errors.New(errors.PhaseProject, errors.KindLoadFailed).
			Op("ReadModule").
			Cause(err).
			Detail("read solver module %s", e.ModulePath).
			Build()
	}
	return data, nil
}

func readEnvFile(dir string) (map[string]string, error) {
	path := filepath.Join(dir, envFileName)
	if _, err := os.Stat(path); err != nil {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.New(errors.PhaseProject, errors.KindParseFailed).
			Op("Activate").
			Cause(err).
			Detail("parse %s", path).
			Build()
	}
	return vars, nil
}

func resolveDepot(projectDir, explicit string) (string, error) {
	if explicit != "" {
		depot, err := filepath.Abs(explicit)
		if err != nil {
			return "", errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err,
				"resolve depot path "+explicit)
		}
		return depot, exportDepot(depot)
	}

	if depot := os.Getenv(EnvDepotPath); depot != "" {
		return depot, nil
	}

	depot := filepath.Join(projectDir, defaultDepotDir)
	return depot, exportDepot(depot)
}

func exportDepot(depot string) error {
	if err := os.Setenv(EnvDepotPath, depot); err != nil {
		return errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err,
			"export "+EnvDepotPath)
	}
	return nil
}

func resolveModule(projectDir string, vars map[string]string, explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv(EnvModule)
	}
	if path == "" {
		path = vars[EnvModule]
	}
	if path == "" {
		path = defaultModuleName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", errors.NotFound(errors.PhaseProject, "solver module", path)
	}
	return path, nil
}
