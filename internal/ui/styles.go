package ui

import "github.com/charmbracelet/lipgloss"

var (
	cPurple     = lipgloss.Color("99")
	cCyan       = lipgloss.Color("39")
	cNeonGreen  = lipgloss.Color("118")
	cRed        = lipgloss.Color("203")
	cOrangeRed  = lipgloss.Color("202")
	cGray       = lipgloss.Color("240")
	cBrightGray = lipgloss.Color("246")
	cWhite      = lipgloss.Color("255")
	cHighlight  = lipgloss.Color("57")

	styleAppHeader = lipgloss.NewStyle().
			Foreground(cWhite).
			Background(cPurple).
			Bold(true).
			Padding(0, 1)

	styleRestartHeader = lipgloss.NewStyle().
				Foreground(cWhite).
				Background(cOrangeRed).
				Bold(true).
				Padding(0, 1)

	styleNormalText   = lipgloss.NewStyle().Foreground(cWhite)
	styleDisabledText = lipgloss.NewStyle().Foreground(cGray)
	styleActiveText   = lipgloss.NewStyle().Foreground(cCyan).Bold(true)
	styleUpdatedText  = lipgloss.NewStyle().Foreground(cNeonGreen)
	styleFailedText   = lipgloss.NewStyle().Foreground(cRed)
	styleInfoText     = lipgloss.NewStyle().Foreground(cBrightGray).Italic(true)

	styleSelected = lipgloss.NewStyle().
			Background(cHighlight).
			Foreground(cWhite).
			Bold(true)

	styleSpinner = lipgloss.NewStyle().Foreground(cCyan)

	styleToast = lipgloss.NewStyle().
			Foreground(cNeonGreen).
			Bold(true)

	styleErrorToast = lipgloss.NewStyle().
			Foreground(cRed).
			Bold(true)

	styleContainer = lipgloss.NewStyle().Padding(1, 2)
)
