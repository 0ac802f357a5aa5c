package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/riptide-sim/riptide"
	"github.com/riptide-sim/riptide/bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBoot modelState = iota
	stateScenario
	stateSim
	stateEval
)

type simInfo struct {
	ndims      int32
	nelements  int32
	ndofs      int32
	nvariables int32
}

type interactiveModel struct {
	cfg      bridge.Config
	scenario string

	rt      *bridge.Runtime
	version string

	sim       riptide.Handle
	simActive bool
	info      simInfo
	time      float64
	dt        float64
	steps     int
	finished  bool
	auto      bool

	input  textinput.Model
	state  modelState
	err    error
	result string
}

func newInteractiveModel(cfg bridge.Config, scenario string) *interactiveModel {
	return &interactiveModel{
		cfg:      cfg,
		scenario: scenario,
		state:    stateBoot,
	}
}

type bootMsg struct {
	err     error
	rt      *bridge.Runtime
	version string
}

type simMsg struct {
	err  error
	sim  riptide.Handle
	info simInfo
	dt   float64
}

type stepMsg struct {
	err      error
	time     float64
	finished bool
}

type dtMsg struct {
	err error
	dt  float64
}

type evalMsg struct {
	err error
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.boot
}

func (m *interactiveModel) boot() tea.Msg {
	ctx := context.Background()

	rt := bridge.New(m.cfg)
	if err := rt.Initialize(ctx); err != nil {
		return bootMsg{err: err}
	}
	version, err := rt.SolverVersion()
	if err != nil {
		rt.Finalize(ctx)
		return bootMsg{err: err}
	}
	return bootMsg{rt: rt, version: version}
}

func (m *interactiveModel) startSim() tea.Msg {
	ctx := context.Background()

	sim, err := m.rt.InitializeSimulation(ctx, m.scenario)
	if err != nil {
		return simMsg{err: err}
	}

	var info simInfo
	if info.ndims, err = m.rt.NDims(ctx, sim); err != nil {
		return simMsg{err: err}
	}
	if info.nelements, err = m.rt.NElements(ctx, sim); err != nil {
		return simMsg{err: err}
	}
	if info.ndofs, err = m.rt.NDofs(ctx, sim); err != nil {
		return simMsg{err: err}
	}
	if info.nvariables, err = m.rt.NVariables(ctx, sim); err != nil {
		return simMsg{err: err}
	}

	dt, err := m.rt.CalculateDt(ctx, sim)
	if err != nil {
		return simMsg{err: err}
	}
	return simMsg{sim: sim, info: info, dt: dt}
}

func (m *interactiveModel) doStep() tea.Msg {
	ctx := context.Background()

	if err := m.rt.Step(ctx, m.sim); err != nil {
		return stepMsg{err: err}
	}
	t, err := m.rt.Time(ctx, m.sim)
	if err != nil {
		return stepMsg{err: err}
	}
	done, err := m.rt.IsFinished(ctx, m.sim)
	if err != nil {
		return stepMsg{err: err}
	}
	return stepMsg{time: t, finished: done}
}

func (m *interactiveModel) recalcDt() tea.Msg {
	dt, err := m.rt.CalculateDt(context.Background(), m.sim)
	return dtMsg{dt: dt, err: err}
}

func (m *interactiveModel) evalCode() tea.Msg {
	return evalMsg{err: m.rt.EvalCode(context.Background(), m.input.Value())}
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	ctx := context.Background()
	if m.rt != nil {
		if m.simActive {
			m.rt.FinalizeSimulation(ctx, m.sim)
		}
		m.rt.Finalize(ctx)
	}
	return m, tea.Quit
}

func (m *interactiveModel) promptScenario() {
	ti := textinput.New()
	ti.Placeholder = "scenarios/wave.toml"
	ti.Prompt = "scenario: "
	ti.Width = 48
	ti.SetValue(m.scenario)
	ti.Focus()
	m.input = ti
	m.state = stateScenario
}

func (m *interactiveModel) promptEval() {
	ti := textinput.New()
	ti.Placeholder = "code to evaluate"
	ti.Prompt = "eval: "
	ti.Width = 48
	ti.Focus()
	m.input = ti
	m.state = stateEval
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}

		switch m.state {
		case stateBoot:
			if msg.String() == "q" {
				return m.quit()
			}

		case stateSim:
			switch msg.String() {
			case "q":
				return m.quit()
			case "s", " ":
				if !m.finished {
					return m, m.doStep
				}
			case "a":
				m.auto = !m.auto
				if m.auto && !m.finished {
					return m, m.doStep
				}
			case "d":
				return m, m.recalcDt
			case "e":
				m.promptEval()
			case "n":
				m.promptScenario()
			}

		case stateScenario:
			switch msg.String() {
			case "enter":
				if v := strings.TrimSpace(m.input.Value()); v != "" {
					m.scenario = v
					m.err = nil
					return m, m.startSim
				}
			case "esc":
				if m.simActive {
					m.state = stateSim
				}
			}

		case stateEval:
			switch msg.String() {
			case "enter":
				return m, m.evalCode
			case "esc":
				m.state = stateSim
			}
		}

	case bootMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.version = msg.version
		if m.scenario != "" {
			return m, m.startSim
		}
		m.promptScenario()

	case simMsg:
		if msg.err != nil {
			m.err = msg.err
			if !m.simActive {
				m.promptScenario()
			} else {
				m.state = stateSim
			}
			return m, nil
		}
		if m.simActive {
			m.rt.FinalizeSimulation(context.Background(), m.sim)
		}
		m.sim = msg.sim
		m.simActive = true
		m.info = msg.info
		m.dt = msg.dt
		m.time = 0
		m.steps = 0
		m.finished = false
		m.auto = false
		m.err = nil
		m.result = ""
		m.state = stateSim

	case stepMsg:
		if msg.err != nil {
			m.err = msg.err
			m.auto = false
			return m, nil
		}
		m.steps++
		m.time = msg.time
		m.finished = msg.finished
		m.err = nil
		if m.finished {
			m.auto = false
		}
		if m.auto {
			return m, m.doStep
		}

	case dtMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.dt = msg.dt
		m.err = nil

	case evalMsg:
		if msg.err != nil {
			m.err = msg.err
			m.result = ""
		} else {
			m.err = nil
			m.result = "eval ok"
		}
		m.state = stateSim
	}

	if m.state == stateScenario || m.state == stateEval {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.rt == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Riptide"))
	if m.version != "" {
		b.WriteString(" ")
		b.WriteString(helpStyle.Render(m.version))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateBoot:
		b.WriteString("Starting solver...")

	case stateScenario:
		b.WriteString("Pick a scenario to run:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("enter start • ctrl+c quit"))

	case stateSim:
		b.WriteString(fmt.Sprintf("Simulation %s: %s\n\n",
			valueStyle.Render(fmt.Sprintf("%d", m.sim)), m.scenario))
		b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %s\n",
			labelStyle.Render("t"), valueStyle.Render(fmt.Sprintf("%g", m.time)),
			labelStyle.Render("steps"), valueStyle.Render(fmt.Sprintf("%d", m.steps)),
			labelStyle.Render("dt"), valueStyle.Render(fmt.Sprintf("%g", m.dt))))
		b.WriteString(fmt.Sprintf("  %s %d   %s %d   %s %d   %s %d\n",
			labelStyle.Render("dims"), m.info.ndims,
			labelStyle.Render("elements"), m.info.nelements,
			labelStyle.Render("dofs"), m.info.ndofs,
			labelStyle.Render("variables"), m.info.nvariables))
		b.WriteString("\n")
		if m.finished {
			b.WriteString(doneStyle.Render("Simulation finished."))
			b.WriteString("\n")
		} else if m.auto {
			b.WriteString(valueStyle.Render("Running..."))
			b.WriteString("\n")
		}
		if m.result != "" {
			b.WriteString(doneStyle.Render(m.result))
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("s step • a auto • d dt • e eval • n new scenario • q quit"))

	case stateEval:
		b.WriteString("Evaluate code in the solver:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc back"))
	}

	return b.String()
}

func runInteractive(cfg bridge.Config, scenario string) error {
	p := tea.NewProgram(newInteractiveModel(cfg, scenario), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
