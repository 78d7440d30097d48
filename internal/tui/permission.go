package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"
)

const (
	permAllow = 0
	permDeny  = 1
)

func (m *Model) permissionActive() bool {
	return m.engine.Gate.PendingTool() != ""
}

func (m *Model) permissionHeight() int {
	if !m.permissionActive() {
		return 0
	}
	return strings.Count(m.renderPermissionPrompt(), "\n") + 1
}

// updatePermission owns the keyboard while a tool waits on approval. Allow
// grants the tool for the current thread and replays the interrupted
// prompt; deny clears the request and hands the keyboard back.
func (m *Model) updatePermission(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case msg.String() == "up" || msg.String() == "k":
		m.permChoice = permAllow
	case msg.String() == "down" || msg.String() == "j":
		m.permChoice = permDeny
	case msg.String() == "1" || msg.String() == "y":
		m.permChoice = permAllow
		return m.confirmPermission()
	case msg.String() == "2" || msg.String() == "n", msg.String() == "esc":
		m.permChoice = permDeny
		return m.confirmPermission()
	case msg.String() == "enter":
		return m.confirmPermission()
	}
	return nil
}

func (m *Model) confirmPermission() tea.Cmd {
	tool := m.engine.Gate.PendingTool()
	if tool == "" {
		return nil
	}
	if m.permChoice == permDeny {
		m.engine.Gate.DenyPermission()
		m.permChoice = permAllow
		return nil
	}
	m.engine.Gate.GrantPermission(tool)
	m.permChoice = permAllow
	return m.resendLast()
}

func (m *Model) renderPermissionPrompt() string {
	tool := m.engine.Gate.PendingTool()
	if tool == "" {
		return ""
	}

	width := m.width - 4
	if width < 30 {
		width = 30
	}

	row := func(idx int, text string) string {
		prefix := "  "
		style := m.theme.PermRow
		if idx == m.permChoice {
			prefix = "› "
			style = m.theme.PermActive
		}
		return style.Render(prefix + text)
	}

	question := truncate.StringWithTail(
		"The assistant wants to use the "+tool+" tool in this chat.", uint(width), "…")

	var b strings.Builder
	b.WriteString(m.theme.PermTitle.Render("Tool permission"))
	b.WriteString("\n")
	b.WriteString(m.theme.PermHint.Render(question))
	b.WriteString("\n\n")
	b.WriteString(row(permAllow, "1. Allow for this chat"))
	b.WriteString("\n")
	b.WriteString(row(permDeny, "2. Don't allow"))
	b.WriteString("\n")
	b.WriteString(m.theme.PermHint.Render("↑/↓ choose  •  enter confirm  •  esc deny"))

	return m.theme.PermBox.Width(width).Render(b.String())
}
