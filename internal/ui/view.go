package ui

import (
	"strings"

	"modupdater/internal/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const (
	headerTitle     = "Mod Updates"
	restartSuffix   = " (restart required)"
	fetchingText    = "Checking for updates..."
	errorText       = "Could not download the update list"
	noUpdateText    = "No updates available"
	finishingText   = "Finishing the running update before exiting..."
	cursorMarker    = "› "
	rowIndent       = "  "
	containerMargin = 4
)

// View implements tea.Model.
func (m *App) View() string {
	sections := []string{m.renderHeader(), ""}
	if m.showHelp {
		sections = append(sections, m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		sections = append(sections, m.renderRows()...)
	}
	sections = append(sections, "", m.renderFooter())
	return styleContainer.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *App) renderHeader() string {
	if m.orch.RestartRequired() {
		return styleRestartHeader.Render(headerTitle + restartSuffix)
	}
	title := headerTitle
	if m.version != "" {
		title += " " + m.version
	}
	return styleAppHeader.Render(title)
}

func (m *App) renderRows() []string {
	switch {
	case m.refreshing || m.outcome == session.OutcomePending:
		return []string{m.spinner.View() + " " + styleInfoText.Render(fetchingText)}
	case m.outcome == session.OutcomeError:
		rows := []string{styleDisabledText.Render(errorText)}
		if m.lastError != "" {
			rows = append(rows, styleFailedText.Render(m.clip(m.lastError, 0)))
		}
		return rows
	case m.outcome == session.OutcomeNoUpdates:
		return []string{styleDisabledText.Render(noUpdateText)}
	}

	rows := make([]string, 0, len(m.entries))
	for i, e := range m.entries {
		rows = append(rows, m.renderRow(e, i == m.cursor))
	}
	return rows
}

func (m *App) renderRow(e *session.Entry, selected bool) string {
	bar := ""
	if p, ok := e.Progress(); ok && p.LengthKnown() {
		bar = " " + m.progress.ViewAs(float64(p.Percent())/100)
	}
	text := m.clip(e.Status(), lipgloss.Width(bar))

	prefix := rowIndent
	if selected {
		prefix = cursorMarker
	}

	var style lipgloss.Style
	switch {
	case selected && !m.busy():
		style = styleSelected
	case e.State().Active():
		style = styleActiveText
	case e.State() == session.StateUpdated:
		style = styleUpdatedText
	case e.State() == session.StateFailed:
		style = styleFailedText
	case !e.Triggerable():
		style = styleDisabledText
	default:
		style = styleNormalText
	}
	return prefix + style.Render(text) + bar
}

func (m *App) renderFooter() string {
	if m.toast != "" {
		if m.toastError {
			return styleErrorToast.Render(m.clip(m.toast, 0))
		}
		return styleToast.Render(m.clip(m.toast, 0))
	}
	if m.quitPending {
		return styleInfoText.Render(finishingText)
	}
	if m.busy() {
		return styleInfoText.Render("Please wait...")
	}
	return m.help.View(m.keys)
}

// clip truncates text to the visible width, leaving room for reserved columns.
func (m *App) clip(text string, reserved int) string {
	if m.width <= 0 {
		return text
	}
	limit := m.width - containerMargin - len(rowIndent) - reserved
	if limit <= 1 {
		return text
	}
	return truncate.StringWithTail(strings.TrimSpace(text), uint(limit), "…")
}
