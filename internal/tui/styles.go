package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#E11D48")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FDA4AF")).
			Bold(true)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFE66D")).
				Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Italic(true)

	anemiaBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#E11D48")).
			Padding(0, 2)

	healthyBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#22C55E")).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)
