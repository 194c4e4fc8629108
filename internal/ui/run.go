package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"bookctl/internal/progress"
)

// Run shows the tracked job until it finishes, fails terminally, the session
// is reset or the user quits. It returns the controller's view at exit.
func Run(ctx context.Context, ctrl Controller, rep *Reporter) (progress.View, error) {
	m := NewModel(ctx, ctrl, rep)
	prog := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil {
		return ctrl.View(), err
	}
	if fm, ok := final.(Model); ok {
		fm.cancel()
	}
	return ctrl.View(), nil
}
