// Package tui shows the progress of control requests sent to torrouterd.
// A request can keep the daemon busy until its trigger timeout, so the
// view keeps a spinner and the elapsed time on screen while it waits.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/torrouter/torrouter/internal/control"
	"github.com/torrouter/torrouter/internal/ui"
)

// Action is one labelled control request.
type Action struct {
	Title string
	Send  func(ctx context.Context) (control.Result, error)
}

// Outcome is how one Action ended. Err is set when the daemon could not be
// reached; otherwise Result is the daemon's verdict.
type Outcome struct {
	Title   string
	Result  control.Result
	Err     error
	Elapsed time.Duration
}

// Failed reports whether the action should stop the sequence.
func (o Outcome) Failed() bool {
	return o.Err != nil || !o.Result.OK
}

// Error returns nil for a successful outcome, the transport error, or a
// *ResultError carrying the refused Result.
func (o Outcome) Error() error {
	switch {
	case o.Err != nil:
		return o.Err
	case !o.Result.OK:
		return &ResultError{Result: o.Result}
	}
	return nil
}

func (o Outcome) render() string {
	took := ui.Subtle(fmt.Sprintf("(%s)", o.Elapsed.Round(100*time.Millisecond)))
	switch {
	case o.Err != nil:
		return ui.StepFail(o.Title) + "\n  " + ui.Subtle(o.Err.Error())
	case !o.Result.OK:
		line := ui.StepFail(o.Result.Message)
		if d := detail(o.Result); d != "" {
			line += " " + ui.Paint(ui.Degraded, d)
		}
		return line + " " + took
	}
	msg := o.Result.Message
	if msg == "" {
		msg = o.Title
	}
	return ui.StepOK(msg) + " " + took
}

// ResultError is a Result the daemon refused or whose trigger failed.
type ResultError struct {
	Result control.Result
}

func (e *ResultError) Error() string {
	if d := detail(e.Result); d != "" {
		return e.Result.Message + " " + d
	}
	return e.Result.Message
}

func detail(res control.Result) string {
	switch {
	case res.TimedOut:
		return "(timed out)"
	case res.ExitCode != nil:
		return fmt.Sprintf("(exit %d)", *res.ExitCode)
	}
	return ""
}

type outcomeMsg Outcome

// progress runs actions one at a time. It stops after the first failure.
type progress struct {
	ctx         context.Context
	cancel      context.CancelFunc
	actions     []Action
	outcomes    []Outcome
	started     time.Time
	spinner     spinner.Model
	interrupted bool
}

func (m *progress) pending() *Action {
	n := len(m.outcomes)
	if n == len(m.actions) || (n > 0 && m.outcomes[n-1].Failed()) {
		return nil
	}
	return &m.actions[n]
}

func (m *progress) send() tea.Cmd {
	a := m.pending()
	if a == nil {
		return tea.Quit
	}
	m.started = time.Now()
	ctx, act := m.ctx, *a
	return func() tea.Msg {
		return outcomeMsg(perform(ctx, act))
	}
}

func perform(ctx context.Context, a Action) Outcome {
	start := time.Now()
	res, err := a.Send(ctx)
	return Outcome{Title: a.Title, Result: res, Err: err, Elapsed: time.Since(start)}
}

func (m *progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.send())
}

func (m *progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			m.cancel()
			return m, tea.Quit
		}
	case outcomeMsg:
		m.outcomes = append(m.outcomes, Outcome(msg))
		return m, m.send()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progress) View() string {
	var b strings.Builder
	for _, o := range m.outcomes {
		b.WriteString(o.render() + "\n")
	}
	a := m.pending()
	switch {
	case a == nil:
	case m.interrupted:
		b.WriteString(ui.Warn(a.Title+": interrupted, torrouterd still finishes the request") + "\n")
	default:
		since := time.Since(m.started).Truncate(time.Second)
		b.WriteString(m.spinner.View() + " " + a.Title + " " + ui.Subtle(since.String()) + "\n")
	}
	return b.String()
}

// err is the error Run reports for the finished model.
func (m *progress) err() error {
	if m.interrupted {
		return context.Canceled
	}
	if n := len(m.outcomes); n > 0 {
		return m.outcomes[n-1].Error()
	}
	return nil
}

// Run sends actions in order and stops at the first one that fails,
// returning that Outcome's Error. Without a terminal on stdout it prints
// one line per action instead of animating.
func Run(ctx context.Context, actions ...Action) error {
	if len(actions) == 0 {
		return nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlain(ctx, os.Stdout, actions)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.Yellow)

	m := &progress{ctx: ctx, cancel: cancel, actions: actions, spinner: s}
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return m.err()
}

func runPlain(ctx context.Context, w io.Writer, actions []Action) error {
	for _, a := range actions {
		o := perform(ctx, a)
		fmt.Fprintln(w, o.render())
		if o.Failed() {
			return o.Error()
		}
	}
	return nil
}
