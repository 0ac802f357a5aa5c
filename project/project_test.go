package project

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/riptide-sim/riptide/errors"
)

// makeProject creates a project directory holding a placeholder solver
// module and returns its path.
func makeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "solver.wasm"), []byte("\x00asm"), 0o644); err != nil {
		t.Fatalf("write solver.wasm: %v", err)
	}
	return dir
}

// resetEnv clears the activation variables so host shell settings cannot
// steer module or depot discovery.
func resetEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDepotPath, "")
	t.Setenv(EnvModule, "")
}

func TestActivate_DepotExplicit(t *testing.T) {
	resetEnv(t)
	t.Setenv(EnvDepotPath, "/elsewhere/depot")
	dir := makeProject(t)
	want := filepath.Join(dir, "my-depot")

	env, err := Activate(dir, Options{DepotPath: want})
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if env.DepotPath != want {
		t.Errorf("DepotPath = %q, want %q", env.DepotPath, want)
	}
	if got := os.Getenv(EnvDepotPath); got != want {
		t.Errorf("exported %s = %q, want %q", EnvDepotPath, got, want)
	}
}

func TestActivate_DepotFromEnvironment(t *testing.T) {
	resetEnv(t)
	t.Setenv(EnvDepotPath, "/var/cache/riptide")
	dir := makeProject(t)

	env, err := Activate(dir, Options{})
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if env.DepotPath != "/var/cache/riptide" {
		t.Errorf("DepotPath = %q, want pre-existing value preserved", env.DepotPath)
	}
	if got := os.Getenv(EnvDepotPath); got != "/var/cache/riptide" {
		t.Errorf("%s = %q, want untouched", EnvDepotPath, got)
	}
}

func TestActivate_DepotDefault(t *testing.T) {
	resetEnv(t)
	dir := makeProject(t)
	want := filepath.Join(dir, "riptide-depot")

	env, err := Activate(dir, Options{})
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if env.DepotPath != want {
		t.Errorf("DepotPath = %q, want %q", env.DepotPath, want)
	}
	if got := os.Getenv(EnvDepotPath); got != want {
		t.Errorf("exported %s = %q, want %q", EnvDepotPath, got, want)
	}
}

func TestActivate_EnvFile(t *testing.T) {
	resetEnv(t)
	dir := makeProject(t)
	content := "SOLVER_THREADS=4\nSOLVER_LOG=quiet\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	env, err := Activate(dir, Options{})
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if env.Vars["SOLVER_THREADS"] != "4" {
		t.Errorf("SOLVER_THREADS = %q, want 4", env.Vars["SOLVER_THREADS"])
	}
	if env.Vars["SOLVER_LOG"] != "quiet" {
		t.Errorf("SOLVER_LOG = %q, want quiet", env.Vars["SOLVER_LOG"])
	}
	if env.Vars[EnvDepotPath] != env.DepotPath {
		t.Errorf("Vars[%s] = %q, want %q", EnvDepotPath, env.Vars[EnvDepotPath], env.DepotPath)
	}
	// Host process environment picks up only the depot variable.
	if os.Getenv("SOLVER_THREADS") != "" {
		t.Error(".env contents leaked into the host environment")
	}
}

func TestActivate_ModuleDiscovery(t *testing.T) {
	t.Run("default name", func(t *testing.T) {
		resetEnv(t)
		dir := makeProject(t)
		env, err := Activate(dir, Options{})
		if err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if want := filepath.Join(dir, "solver.wasm"); env.ModulePath != want {
			t.Errorf("ModulePath = %q, want %q", env.ModulePath, want)
		}
	})

	t.Run("explicit relative path", func(t *testing.T) {
		resetEnv(t)
		dir := makeProject(t)
		if err := os.WriteFile(filepath.Join(dir, "alt.wasm"), []byte("\x00asm"), 0o644); err != nil {
			t.Fatalf("write alt.wasm: %v", err)
		}
		env, err := Activate(dir, Options{ModulePath: "alt.wasm"})
		if err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if want := filepath.Join(dir, "alt.wasm"); env.ModulePath != want {
			t.Errorf("ModulePath = %q, want %q", env.ModulePath, want)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		resetEnv(t)
		dir := makeProject(t)
		other := filepath.Join(t.TempDir(), "env.wasm")
		if err := os.WriteFile(other, []byte("\x00asm"), 0o644); err != nil {
			t.Fatalf("write env.wasm: %v", err)
		}
		t.Setenv(EnvModule, other)
		env, err := Activate(dir, Options{})
		if err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if env.ModulePath != other {
			t.Errorf("ModulePath = %q, want %q", env.ModulePath, other)
		}
	})

	t.Run("env file override", func(t *testing.T) {
		resetEnv(t)
		dir := makeProject(t)
		if err := os.WriteFile(filepath.Join(dir, "pinned.wasm"), []byte("\x00asm"), 0o644); err != nil {
			t.Fatalf("write pinned.wasm: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RIPTIDE_MODULE=pinned.wasm\n"), 0o644); err != nil {
			t.Fatalf("write .env: %v", err)
		}
		env, err := Activate(dir, Options{})
		if err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if want := filepath.Join(dir, "pinned.wasm"); env.ModulePath != want {
			t.Errorf("ModulePath = %q, want %q", env.ModulePath, want)
		}
	})

	t.Run("missing module", func(t *testing.T) {
		resetEnv(t)
		dir := t.TempDir() // no solver.wasm inside
		_, err := Activate(dir, Options{})
		if err == nil {
			t.Fatal("expected error for missing module")
		}
		target := &errors.Error{Phase: errors.PhaseProject, Kind: errors.KindNotFound}
		if !stderrors.Is(err, target) {
			t.Errorf("error = %v, want project not-found", err)
		}
	})
}

func TestActivate_MissingProjectDir(t *testing.T) {
	resetEnv(t)
	_, err := Activate("/no/such/project", Options{})
	if err == nil {
		t.Fatal("expected error for missing project directory")
	}
	target := &errors.Error{Phase: errors.PhaseProject, Kind: errors.KindNotFound}
	if !stderrors.Is(err, target) {
		t.Errorf("error = %v, want project not-found", err)
	}
}

func TestActivate_EmptyProjectDir(t *testing.T) {
	_, err := Activate("", Options{})
	if err == nil {
		t.Fatal("expected error for empty project directory")
	}
}

func TestEnvironment_ReadModule(t *testing.T) {
	resetEnv(t)
	dir := makeProject(t)

	env, err := Activate(dir, Options{})
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	data, err := env.ReadModule()
	if err != nil {
		t.Fatalf("ReadModule failed: %v", err)
	}
	if string(data) != "\x00asm" {
		t.Errorf("module bytes = %q", data)
	}

	env.ModulePath = filepath.Join(dir, "gone.wasm")
	if _, err := env.ReadModule(); err == nil {
		t.Fatal("expected error for missing module file")
	}
}
