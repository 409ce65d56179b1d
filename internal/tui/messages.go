package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg is sent at the render frame rate to refresh the elapsed clock.
type TickMsg struct {
	Time time.Time
}

// StateChangedMsg signals that the sequencer applied at least one mutation.
type StateChangedMsg struct{}

// TickCmd returns a command that emits a TickMsg after interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// WaitForUpdateCmd blocks until the sequencer signals a state change.
// It yields nil once the channel is closed.
func WaitForUpdateCmd(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return StateChangedMsg{}
	}
}
