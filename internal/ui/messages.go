package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FrameInterval is how often the model polls the running task.
const FrameInterval = 50 * time.Millisecond

const toastDuration = 2 * time.Second

type tickMsg struct{}

func scheduleTick(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = FrameInterval
	}
	return tea.Tick(interval, func(time.Time) tea.Msg { return tickMsg{} })
}
