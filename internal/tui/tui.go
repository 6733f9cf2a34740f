// Package tui implements the Bubble Tea progress view shown while an audit
// runs in a terminal.
package tui

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/solaudit/internal/analysis"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/orchestrator"
)

type state int

const (
	statePending state = iota
	stateRunning
	stateDone
	stateFailed
)

// row is the progress of one source.
type row struct {
	name     string
	state    state
	findings int
	score    *int
	failure  model.FailureKind
	reason   string
	duration time.Duration
}

type startedMsg struct{ source string }

type finishedMsg struct{ result model.AnalysisResult }

type doneMsg struct{ report model.ConsolidatedReport }

// Model is the Bubble Tea model for the audit progress view.
type Model struct {
	title   string
	rows    []row
	index   map[string]int
	spinner spinner.Model

	showDetails bool
	cancelled   bool
	report      *model.ConsolidatedReport
}

// New creates a progress view listing the pattern scanner and sources as
// pending. Sources first seen in an event (the validator) are appended.
func New(title string, sources []string) Model {
	m := Model{
		title: title,
		index: make(map[string]int),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(runningStyle),
		),
	}
	m.row(analysis.SourceName)
	for _, s := range sources {
		m.row(s)
	}
	return m
}

// row returns the index of name's row, adding it if needed.
func (m *Model) row(name string) int {
	if i, ok := m.index[name]; ok {
		return i
	}
	m.rows = append(m.rows, row{name: name})
	m.index[name] = len(m.rows) - 1
	return len(m.rows) - 1
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.report == nil {
				m.cancelled = true
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Details):
			m.showDetails = !m.showDetails
		}
		return m, nil

	case startedMsg:
		i := m.row(msg.source)
		m.rows[i].state = stateRunning
		return m, nil

	case finishedMsg:
		res := msg.result
		r := &m.rows[m.row(res.Source)]
		r.duration = res.Duration
		if res.Failed() {
			r.state = stateFailed
			r.failure = res.FailureKind
			r.reason = res.Error
		} else {
			r.state = stateDone
			r.findings = len(res.Findings)
			r.score = res.SecurityScore
		}
		return m, nil

	case doneMsg:
		rep := msg.report
		m.report = &rep
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	return m.render()
}

// Cancelled reports whether the user quit before the audit finished.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// observer forwards audit progress into a running program.
type observer struct {
	p *tea.Program
}

func (o observer) SourceStarted(source string) {
	o.p.Send(startedMsg{source: source})
}

func (o observer) SourceFinished(res model.AnalysisResult) {
	o.p.Send(finishedMsg{result: res})
}

// AuditFunc runs one audit, reporting progress to obs.
type AuditFunc func(ctx context.Context, obs orchestrator.Observer) model.ConsolidatedReport

// Run shows progress on out while fn runs and returns fn's report. Quitting
// the view cancels the context passed to fn; fn's report is still returned.
func Run(ctx context.Context, out io.Writer, title string, sources []string, fn AuditFunc) (model.ConsolidatedReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(title, sources), tea.WithOutput(out))

	reports := make(chan model.ConsolidatedReport, 1)
	go func() {
		rep := fn(ctx, observer{p: p})
		reports <- rep
		p.Send(doneMsg{report: rep})
	}()

	_, err := p.Run()
	cancel()
	return <-reports, err
}
