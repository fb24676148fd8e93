package main

import (
	tea "github.com/charmbracelet/bubbletea"
)

// StatusCmd shows the live router dashboard.
type StatusCmd struct{}

func (c *StatusCmd) Run(globals *CLI) error {
	p := tea.NewProgram(newDashModel(globals.URL, globals.client()))
	_, err := p.Run()
	return err
}
