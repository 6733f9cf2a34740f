package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorPurple = lipgloss.Color("#bd93f9")
	colorDim    = lipgloss.Color("#6272a4")
	colorFg     = lipgloss.Color("#f8f8f2")
	colorOrange = lipgloss.Color("#ffb86c")
	colorBorder = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	nameStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	runningStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	doneStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	reasonStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	statsStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)
