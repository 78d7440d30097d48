package tui

import (
	"chat-desk/internal/app"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the full-screen chat UI and blocks until the user quits.
func Run(engine *app.Engine) error {
	p := tea.NewProgram(New(engine), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
