// Package ui renders the terminal views of torrouterctl.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// MaxWidth caps the dashboard width.
const MaxWidth = 80

var (
	Green  = lipgloss.Color("2")
	Red    = lipgloss.Color("1")
	Yellow = lipgloss.Color("3")
	Grey   = lipgloss.Color("8")
)

// Health is the colour class of an indicator.
type Health int

const (
	Up       Health = iota // green
	Down                   // red
	Degraded               // yellow
	Unknown                // uncoloured
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Grey).
	Padding(0, 1).
	MarginBottom(1)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(Grey)
)

func colour(h Health) lipgloss.Style {
	switch h {
	case Up:
		return lipgloss.NewStyle().Foreground(Green)
	case Down:
		return lipgloss.NewStyle().Foreground(Red)
	case Degraded:
		return lipgloss.NewStyle().Foreground(Yellow)
	}
	return lipgloss.NewStyle()
}

// Paint renders s in the colour of h.
func Paint(h Health, s string) string {
	return colour(h).Render(s)
}

// Bold renders s in bold.
func Bold(s string) string {
	return titleStyle.Render(s)
}

// Dot returns a coloured ● for h.
func Dot(h Health) string {
	return colour(h).Render("●")
}

// ServiceHealth maps a systemd state to an indicator colour.
func ServiceHealth(state string) Health {
	switch state {
	case "active":
		return Up
	case "inactive":
		return Down
	}
	return Unknown
}

// WANHealth maps a WAN mode to an indicator colour.
func WANHealth(mode string) Health {
	switch mode {
	case "normal":
		return Up
	case "failover", "manual":
		return Degraded
	case "nowan":
		return Down
	}
	return Unknown
}

// Section draws content in a rounded box under a bold title.
func Section(title, content string, width int) string {
	width = min(width, MaxWidth)
	inner := max(width-4, 40)
	return boxStyle.Width(inner).Render(titleStyle.Render(title) + "\n" + content)
}

// Bar draws a percentage as a fixed-width gauge, green below 60, yellow
// below 85 and red above.
func Bar(percent float64, width int) string {
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100 * float64(width))
	h := Up
	switch {
	case percent >= 85:
		h = Down
	case percent >= 60:
		h = Degraded
	}
	return colour(h).Render(strings.Repeat("█", filled)) +
		subtleStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %5.1f%%", percent)
}

// Megabytes formats a size in MB using the largest unit that keeps the
// number readable.
func Megabytes(mb float64) string {
	switch {
	case mb >= 1024*1024:
		return fmt.Sprintf("%.2f TB", mb/(1024*1024))
	case mb >= 1024:
		return fmt.Sprintf("%.2f GB", mb/1024)
	}
	return fmt.Sprintf("%.2f MB", mb)
}

// Row lays out up to two key/value pairs on one line.
func Row(k1, v1, k2, v2 string, width int) string {
	left := fmt.Sprintf("%-14s %s", k1+":", v1)
	if k2 == "" {
		return left
	}
	gap := max(width/2-lipgloss.Width(left), 2)
	return left + strings.Repeat(" ", gap) + k2 + ": " + v2
}

// Table aligns rows under subtle headers.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, n := 0, min(len(row), len(widths)); i < n; i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	pad := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = c + strings.Repeat(" ", max(w-lipgloss.Width(c), 0))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{subtleStyle.Render(pad(headers))}
	for _, row := range rows {
		lines = append(lines, pad(row))
	}
	return strings.Join(lines, "\n")
}

// StepOK prefixes msg with a green check.
func StepOK(msg string) string {
	return colour(Up).Render("✔") + " " + msg
}

// StepFail prefixes msg with a red cross.
func StepFail(msg string) string {
	return colour(Down).Render("✘") + " " + msg
}

// Warn prefixes msg with a yellow warning sign. Callers write it to stderr.
func Warn(msg string) string {
	return colour(Degraded).Render("⚠") + " " + msg
}

// Error prefixes msg with a red cross. Callers write it to stderr.
func Error(msg string) string {
	return colour(Down).Render("✘") + " " + msg
}

// Subtle renders s in the muted colour.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}
