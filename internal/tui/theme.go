package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

type ThemeName string

const (
	ThemePaper ThemeName = "paper"
	ThemeInk   ThemeName = "ink"
)

type Theme struct {
	Name ThemeName

	TextPrimary lipgloss.AdaptiveColor
	TextMuted   lipgloss.AdaptiveColor

	Accent  lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Warn    lipgloss.AdaptiveColor
	Error   lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor

	TopBar      lipgloss.Style
	TopBarTitle lipgloss.Style
	TopBarMeta  lipgloss.Style

	InputBox lipgloss.Style
	Footer   lipgloss.Style
	Spinner  lipgloss.Style
	Toast    lipgloss.Style

	RoleYou  lipgloss.Style
	RoleAI   lipgloss.Style
	RoleTool lipgloss.Style
	RoleErr  lipgloss.Style

	PermBox    lipgloss.Style
	PermTitle  lipgloss.Style
	PermActive lipgloss.Style
	PermRow    lipgloss.Style
	PermHint   lipgloss.Style
}

func NewTheme() Theme {
	if os.Getenv("CHATDESK_NO_COLOR") == "1" {
		return newNoColorTheme()
	}
	switch ThemeName(os.Getenv("CHATDESK_THEME")) {
	case ThemeInk:
		return newInkTheme()
	default:
		return newPaperTheme()
	}
}

func newPaperTheme() Theme {
	t := Theme{
		Name:        ThemePaper,
		TextPrimary: lipgloss.AdaptiveColor{Light: "#1d2433", Dark: "#f2f2f2"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#4a5568", Dark: "#c7c7c7"},
		Accent:      lipgloss.AdaptiveColor{Light: "#1f6feb", Dark: "#7aa2ff"},
		Success:     lipgloss.AdaptiveColor{Light: "#0f766e", Dark: "#46d1b7"},
		Warn:        lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#f4b27d"},
		Error:       lipgloss.AdaptiveColor{Light: "#b42318", Dark: "#ff7a7a"},
		Border:      lipgloss.AdaptiveColor{Light: "#cbd5e0", Dark: "#3a3a3a"},
	}
	return t.buildStyles()
}

func newInkTheme() Theme {
	t := Theme{
		Name:        ThemeInk,
		TextPrimary: lipgloss.AdaptiveColor{Light: "#111827", Dark: "#eaeaea"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#374151", Dark: "#b7b7b7"},
		Accent:      lipgloss.AdaptiveColor{Light: "#0ea5e9", Dark: "#5cc8ff"},
		Success:     lipgloss.AdaptiveColor{Light: "#059669", Dark: "#46d1b7"},
		Warn:        lipgloss.AdaptiveColor{Light: "#d97706", Dark: "#f4b27d"},
		Error:       lipgloss.AdaptiveColor{Light: "#dc2626", Dark: "#ff7a7a"},
		Border:      lipgloss.AdaptiveColor{Light: "#9ca3af", Dark: "#2a2a2a"},
	}
	return t.buildStyles()
}

func newNoColorTheme() Theme {
	t := Theme{
		Name:        "no-color",
		TextPrimary: lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#333333", Dark: "#dddddd"},
		Accent:      lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"},
		Success:     lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"},
		Warn:        lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"},
		Error:       lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"},
		Border:      lipgloss.AdaptiveColor{Light: "#555555", Dark: "#777777"},
	}
	return t.buildStyles()
}

func (t Theme) buildStyles() Theme {
	t.TopBar = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.TopBarTitle = lipgloss.NewStyle().Bold(true).Foreground(t.TextPrimary)
	t.TopBarMeta = lipgloss.NewStyle().Foreground(t.TextMuted)

	t.InputBox = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.Footer = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.Spinner = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.Toast = lipgloss.NewStyle().Foreground(t.Warn)

	t.RoleYou = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.RoleAI = lipgloss.NewStyle().Bold(true).Foreground(t.TextPrimary)
	t.RoleTool = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.RoleErr = lipgloss.NewStyle().Bold(true).Foreground(t.Error)

	t.PermBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.PermTitle = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.PermActive = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.PermRow = lipgloss.NewStyle().Foreground(t.TextPrimary)
	t.PermHint = lipgloss.NewStyle().Foreground(t.TextMuted)
	return t
}
