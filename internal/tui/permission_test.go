package tui

import (
	"strings"
	"testing"

	"chat-desk/internal/app"

	tea "github.com/charmbracelet/bubbletea"
)

func newUIEngine(t *testing.T) *app.Engine {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.Storage = app.StorageFile
	cfg.StorageRoot = t.TempDir()
	engine, err := app.NewEngine(cfg, true)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func sized(m *Model) *Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(*Model)
}

func TestPermissionPromptShowsPendingTool(t *testing.T) {
	engine := newUIEngine(t)
	engine.Sessions.NewSession("")
	engine.Gate.RequestPermission("file_write")

	m := sized(New(engine))
	prompt := m.renderPermissionPrompt()
	if !strings.Contains(prompt, "file_write") {
		t.Fatalf("prompt does not name the tool:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Allow for this chat") {
		t.Fatalf("prompt missing allow option:\n%s", prompt)
	}
	if !m.permissionActive() {
		t.Fatalf("prompt should be active while a request is pending")
	}
}

func TestPermissionPromptHiddenWithoutRequest(t *testing.T) {
	engine := newUIEngine(t)
	engine.Sessions.NewSession("")

	m := sized(New(engine))
	if m.permissionActive() {
		t.Fatalf("no request pending, prompt must be inactive")
	}
	if got := m.renderPermissionPrompt(); got != "" {
		t.Fatalf("prompt rendered without a request: %q", got)
	}
}

func TestPermissionDenyClearsRequest(t *testing.T) {
	engine := newUIEngine(t)
	sess := engine.Sessions.NewSession("")
	engine.Gate.RequestPermission("shell_exec")

	m := sized(New(engine))
	m.updatePermission(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})

	if engine.Gate.PendingTool() != "" {
		t.Fatalf("deny did not clear the pending request")
	}
	if engine.Gate.IsAllowed(sess.ThreadID, "shell_exec") {
		t.Fatalf("deny must not grant the tool")
	}
}

func TestPermissionAllowGrantsForThread(t *testing.T) {
	engine := newUIEngine(t)
	sess := engine.Sessions.NewSession("")
	engine.Gate.RequestPermission("web_search")

	m := sized(New(engine))
	m.lastPrompt = "search for something"
	cmd := m.updatePermission(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})

	if engine.Gate.PendingTool() != "" {
		t.Fatalf("allow did not clear the pending request")
	}
	if !engine.Gate.IsAllowed(sess.ThreadID, "web_search") {
		t.Fatalf("allow must grant the tool for the current thread")
	}
	if cmd == nil {
		t.Fatalf("allow should replay the interrupted prompt")
	}
}

func TestPermissionEnterConfirmsSelection(t *testing.T) {
	engine := newUIEngine(t)
	sess := engine.Sessions.NewSession("")
	engine.Gate.RequestPermission("file_read")

	m := sized(New(engine))
	m.updatePermission(tea.KeyMsg{Type: tea.KeyDown})
	m.updatePermission(tea.KeyMsg{Type: tea.KeyEnter})

	if engine.Gate.PendingTool() != "" {
		t.Fatalf("enter did not confirm")
	}
	if engine.Gate.IsAllowed(sess.ThreadID, "file_read") {
		t.Fatalf("down+enter selects deny")
	}
}
