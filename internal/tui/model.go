package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-desk/internal/app"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	tickInterval  = 120 * time.Millisecond
	toastLifetime = 4 * time.Second
)

// Model is the bubbletea model for the chat screen. The engine mutates its
// state from the submit goroutine and the event bus, so the view is
// re-rendered on a fixed tick from engine snapshots instead of keeping a
// parallel copy of the conversation.
type Model struct {
	engine   *app.Engine
	theme    Theme
	markdown *MarkdownRenderer
	keys     keyMap

	input textarea.Model
	vp    viewport.Model

	width      int
	height     int
	ready      bool
	generating bool
	spinFrame  int
	lastPrompt string
	permChoice int
	toast      *toastBuffer
}

type tickMsg time.Time

type turnDoneMsg struct{}

// toastBuffer receives engine notifications and keeps the latest one
// visible for a short while.
type toastBuffer struct {
	mu   sync.Mutex
	text string
	at   time.Time
}

func (t *toastBuffer) Notify(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
	t.at = time.Now()
}

func (t *toastBuffer) current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.text == "" || time.Since(t.at) > toastLifetime {
		return ""
	}
	return t.text
}

func New(engine *app.Engine) *Model {
	theme := NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Message (enter to send, shift+enter for newline)"
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Prompt = "▏"
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	toast := &toastBuffer{}
	engine.Notifier = toast
	engine.Projects.SetNotifier(toast)

	return &Model{
		engine:   engine,
		theme:    theme,
		markdown: NewMarkdownRenderer(theme),
		keys:     defaultKeyMap(),
		input:    ta,
		toast:    toast,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 4)
		chatHeight := msg.Height - m.chromeHeight()
		if chatHeight < 3 {
			chatHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, chatHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = chatHeight
		}
		m.refreshConversation()
		return m, nil

	case tickMsg:
		m.spinFrame = (m.spinFrame + 1) % len(spinnerFrames)
		m.refreshConversation()
		return m, m.tick()

	case turnDoneMsg:
		m.generating = false
		m.refreshConversation()
		m.vp.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if m.permissionActive() {
			return m, m.updatePermission(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m, m.submit()
		case key.Matches(msg, m.keys.NewChat):
			m.engine.Sessions.NewSession(m.engine.Projects.CurrentID())
			m.refreshConversation()
			return m, nil
		case key.Matches(msg, m.keys.NextChat):
			m.cycleSession()
			return m, nil
		case key.Matches(msg, m.keys.ToggleRAG):
			m.engine.SetRAGEnabled(!m.engine.RAGEnabled())
			return m, nil
		case key.Matches(msg, m.keys.ToggleTools):
			m.cycleToolToggle()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.generating {
		return nil
	}
	m.input.Reset()
	m.lastPrompt = text
	m.generating = true

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		m.engine.Submit(ctx, text, nil)
		return turnDoneMsg{}
	}
}

// resendLast replays the prompt that was interrupted by a permission
// request, now that the gate has a decision.
func (m *Model) resendLast() tea.Cmd {
	text := m.lastPrompt
	if text == "" {
		return nil
	}
	m.generating = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		m.engine.Submit(ctx, text, nil)
		return turnDoneMsg{}
	}
}

func (m *Model) cycleSession() {
	sessions := m.engine.Sessions.Sessions()
	if len(sessions) < 2 {
		return
	}
	active := m.engine.Sessions.ActiveID()
	for i, sess := range sessions {
		if sess.ID == active {
			m.engine.Sessions.SelectSession(sessions[(i+1)%len(sessions)].ID)
			m.refreshConversation()
			m.vp.GotoBottom()
			return
		}
	}
	m.engine.Sessions.SelectSession(sessions[0].ID)
	m.refreshConversation()
}

// cycleToolToggle walks the catalog: no tools -> each tool alone -> all
// tools -> none again.
func (m *Model) cycleToolToggle() {
	catalog := m.engine.Catalog.ListTools()
	if len(catalog) == 0 {
		return
	}
	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		names = append(names, tool.Name)
	}

	enabled := m.engine.EnabledTools()
	switch {
	case len(enabled) == 0:
		m.engine.SetEnabledTools(names[:1])
	case len(enabled) == len(names):
		m.engine.SetEnabledTools(nil)
	case len(enabled) == 1:
		for i, name := range names {
			if name == enabled[0] {
				if i == len(names)-1 {
					m.engine.SetEnabledTools(names)
				} else {
					m.engine.SetEnabledTools(names[i+1 : i+2])
				}
				return
			}
		}
		m.engine.SetEnabledTools(names[:1])
	default:
		m.engine.SetEnabledTools(nil)
	}
}

func (m *Model) refreshConversation() {
	if !m.ready {
		return
	}
	atBottom := m.vp.AtBottom()
	m.vp.SetContent(m.renderConversation())
	if atBottom {
		m.vp.GotoBottom()
	}
}

func (m *Model) chromeHeight() int {
	// top bar + input box + status + footer
	return 1 + m.input.Height() + 2 + 2 + m.permissionHeight()
}

func (m *Model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.renderTopBar())
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	if prompt := m.renderPermissionPrompt(); prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.theme.InputBox.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.theme.Footer.Render(m.keys.footerHelp()))
	return b.String()
}

func (m *Model) renderTopBar() string {
	title := "chat-desk"
	if active := m.engine.Sessions.Active(); active != nil && active.Title != "" {
		title = active.Title
	}

	meta := []string{m.engine.Model()}
	if m.engine.RAGEnabled() {
		meta = append(meta, "rag:on")
	}
	if tools := m.engine.EnabledTools(); len(tools) > 0 {
		meta = append(meta, "tools:"+strings.Join(tools, ","))
	}

	left := m.theme.TopBarTitle.Render(title)
	right := m.theme.TopBarMeta.Render(strings.Join(meta, "  "))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderConversation() string {
	width := m.vp.Width - 2
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for _, msg := range m.engine.Sessions.VisibleMessages() {
		switch msg.Role {
		case app.RoleUser:
			b.WriteString(m.theme.RoleYou.Render("You"))
			b.WriteString("\n")
			b.WriteString(wordwrap.String(msg.Text, width))
			for _, att := range msg.Attachments {
				b.WriteString("\n")
				b.WriteString(m.theme.TopBarMeta.Render(fmt.Sprintf("  📎 %s [%s]", att.Name, att.Status)))
			}
		case app.RoleTool:
			name := msg.ToolName
			if name == "" {
				name = "tool"
			}
			b.WriteString(m.theme.RoleTool.Render("⚙ " + name))
			b.WriteString("\n")
			b.WriteString(m.theme.RoleTool.Render(wordwrap.String(msg.Text, width)))
		case app.RoleAssistant:
			b.WriteString(m.theme.RoleAI.Render("Assistant"))
			b.WriteString("\n")
			if msg.Text == "" && m.generating {
				b.WriteString(m.theme.TopBarMeta.Render("…"))
			} else {
				b.WriteString(m.markdown.Render(msg.Text, width))
			}
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m *Model) renderStatusLine() string {
	if toast := m.toast.current(); toast != "" {
		return m.theme.Toast.Render(toast)
	}

	status := m.engine.Status()
	switch status.Kind {
	case app.StatusLoading, app.StatusToolExecuting:
		frame := spinnerFrames[m.spinFrame]
		return m.theme.Spinner.Render(frame + " " + status.Message)
	case app.StatusError:
		return m.theme.RoleErr.Render("✗ " + status.Message)
	case app.StatusSuccess:
		return m.theme.Spinner.Render("✓ " + status.Message)
	default:
		return ""
	}
}
