package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/riptide-sim/riptide/abi"
	"github.com/riptide-sim/riptide/bridge"
	"github.com/riptide-sim/riptide/engine"
	"github.com/riptide-sim/riptide/project"
)

func main() {
	var (
		projectDir  = flag.String("project", "", "Path to the solver project directory")
		scenario    = flag.String("scenario", "", "Scenario file, relative to the project")
		depot       = flag.String("depot", "", "Compiled-code depot (overrides RIPTIDE_DEPOT_PATH)")
		modulePath  = flag.String("module", "", "Solver module (overrides RIPTIDE_MODULE)")
		maxSteps    = flag.Int("steps", 0, "Stop after this many steps (0 = run to completion)")
		plotFile    = flag.String("plot", "", "Write a PNG of the mean cell average over time")
		list        = flag.Bool("list", false, "List solver operations and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *projectDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -project <dir> -scenario <file> [-steps n] [-plot out.png]")
		fmt.Fprintln(os.Stderr, "       run -project <dir> -list")
		fmt.Fprintln(os.Stderr, "       run -project <dir> -scenario <file> -i  (interactive mode)")
		os.Exit(1)
	}

	setupLogging(*verbose)

	cfg := bridge.Config{
		ProjectDir: *projectDir,
		DepotPath:  *depot,
		ModulePath: *modulePath,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *scenario); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *scenario, *maxSteps, *plotFile, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging routes the package loggers to a development logger when
// asked. The default is silent; the CLI speaks through stdout.
func setupLogging(verbose bool) {
	if !verbose && os.Getenv("RIPTIDE_DEBUG") == "" {
		return
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	bridge.SetLogger(logger)
	engine.SetLogger(logger.Named("engine"))
	project.SetLogger(logger.Named("project"))
}

func run(cfg bridge.Config, scenario string, maxSteps int, plotFile string, listOnly bool) error {
	ctx := context.Background()

	rt := bridge.New(cfg)
	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer rt.Finalize(ctx)

	solverVersion, err := rt.SolverVersion()
	if err != nil {
		return err
	}
	fmt.Printf("Bindings: %s\n", rt.Version())
	fmt.Printf("Solver:   %s\n", solverVersion)

	if listOnly {
		return listOperations(rt)
	}

	if scenario == "" {
		return fmt.Errorf("no scenario given (use -scenario, or -list to inspect the solver)")
	}

	sim, err := rt.InitializeSimulation(ctx, scenario)
	if err != nil {
		return fmt.Errorf("initialize simulation: %w", err)
	}

	ndims, err := rt.NDims(ctx, sim)
	if err != nil {
		return err
	}
	nelements, err := rt.NElements(ctx, sim)
	if err != nil {
		return err
	}
	ndofs, err := rt.NDofs(ctx, sim)
	if err != nil {
		return err
	}
	nvariables, err := rt.NVariables(ctx, sim)
	if err != nil {
		return err
	}
	fmt.Printf("\nSimulation %d: %s\n", sim, scenario)
	fmt.Printf("  dimensions: %d  elements: %d  dofs: %d  variables: %d\n",
		ndims, nelements, ndofs, nvariables)

	var series plotter.XYs
	averages := make([]float64, nelements)
	record := func() error {
		if plotFile == "" {
			return nil
		}
		t, err := rt.Time(ctx, sim)
		if err != nil {
			return err
		}
		if err := rt.LoadCellAverages(ctx, sim, 0, averages); err != nil {
			return err
		}
		series = append(series, plotter.XY{X: t, Y: mean(averages)})
		return nil
	}
	if err := record(); err != nil {
		return err
	}

	steps := 0
	for {
		done, err := rt.IsFinished(ctx, sim)
		if err != nil {
			return fmt.Errorf("is finished: %w", err)
		}
		if done {
			break
		}
		if maxSteps > 0 && steps >= maxSteps {
			break
		}
		if err := rt.Step(ctx, sim); err != nil {
			return fmt.Errorf("step %d: %w", steps+1, err)
		}
		steps++
		if err := record(); err != nil {
			return err
		}
	}

	t, err := rt.Time(ctx, sim)
	if err != nil {
		return err
	}
	fmt.Printf("\nStopped after %d steps, t = %g\n", steps, t)

	if plotFile != "" {
		if err := writePlot(plotFile, scenario, series); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
		fmt.Printf("Plot written to %s\n", plotFile)
	}

	if err := rt.FinalizeSimulation(ctx, sim); err != nil {
		return fmt.Errorf("finalize simulation: %w", err)
	}
	return nil
}

func listOperations(rt *bridge.Runtime) error {
	ext, err := rt.SolverVersionExtended()
	if err != nil {
		return err
	}
	fmt.Printf("Extended: %s\n", ext)

	ops, err := abi.Operations()
	if err != nil {
		return err
	}
	fmt.Printf("\nSolver operations:\n")
	for _, o := range ops {
		fmt.Printf("  %-24s %s\n", o.Export, abi.CoreString(o.CoreParams, o.CoreResults))
	}
	return nil
}

func writePlot(path, scenario string, series plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "Cell averages, variable 0"
	p.X.Label.Text = "t"
	p.Y.Label.Text = "mean"

	line, err := plotter.NewLine(series)
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	p.Add(line)
	p.Legend.Add(scenario, line)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
