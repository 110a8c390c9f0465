// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and forwards change notifications to it
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Monitor runs the TUI and feeds it refreshes
type Monitor struct {
	program *tea.Program
	updates chan tea.Msg
}

// NewMonitor creates a monitor for ctrl connected at addr
func NewMonitor(ctrl Controller, addr string, opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Monitor{
		program: tea.NewProgram(NewModel(ctrl, addr), opts...),
		updates: make(chan tea.Msg, 16),
	}
}

// Run blocks until the user quits or ctx ends
func (t *Monitor) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				t.program.Quit()
				return
			case msg := <-t.updates:
				t.program.Send(msg)
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Refresh asks the TUI to re-read state. It never blocks; a refresh already
// queued covers this one.
func (t *Monitor) Refresh() {
	select {
	case t.updates <- RefreshMsg{}:
	default:
	}
}

// SetConnState shows a connection state change
func (t *Monitor) SetConnState(s string) {
	select {
	case t.updates <- ConnStateMsg{State: s}:
	default:
	}
}
