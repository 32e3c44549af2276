package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the viewer on the terminal until the user quits or ctx is done.
func Run(ctx context.Context, src Source, status StatusFunc) error {
	m, cancel := New(src, status)
	defer cancel()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
