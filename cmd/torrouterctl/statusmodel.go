package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/torrouter/torrouter/internal/status"
)

// refreshInterval matches the web dashboard's polling period.
const refreshInterval = 10 * time.Second

type statusFetcher interface {
	Status(ctx context.Context) (status.Snapshot, error)
}

// dashData holds everything the dashboard displays.
type dashData struct {
	url     string
	snap    status.Snapshot
	err     error
	fetched time.Time
	took    time.Duration
}

func fetchDashData(url string, c statusFetcher) dashData {
	start := time.Now()
	snap, err := c.Status(context.Background())
	return dashData{
		url:     url,
		snap:    snap,
		err:     err,
		fetched: start,
		took:    time.Since(start),
	}
}

// dashModel is the Bubble Tea model for the status dashboard.
type dashModel struct {
	url      string
	client   statusFetcher
	data     dashData
	loading  bool
	width    int
	quitting bool
}

func newDashModel(url string, c statusFetcher) dashModel {
	return dashModel{
		url:     url,
		client:  c,
		data:    dashData{url: url},
		loading: true,
		width:   80,
	}
}

// Messages.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type refreshMsg struct {
	data dashData
}

func (m dashModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		return refreshMsg{data: fetchDashData(m.url, m.client)}
	}
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.fetchCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())

	case refreshMsg:
		m.data = msg.data
		m.loading = false
		return m, nil
	}

	return m, nil
}

func (m dashModel) View() string {
	if m.quitting {
		return ""
	}
	if m.loading && m.data.fetched.IsZero() {
		return "Loading status from " + m.url + "…\n"
	}
	return renderDashboard(m.data, m.width)
}
