package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
)

const progressWidth = 24

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	agentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00AFFF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	consoleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A8A8")).PaddingLeft(2)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

// notificationStyle picks a style by notification type.
func notificationStyle(kind string) lipgloss.Style {
	switch kind {
	case build.NotifySuccess:
		return successStyle
	case build.NotifyWarning:
		return warningStyle
	case build.NotifyError:
		return errorStyle
	default:
		return agentStyle
	}
}

// progressBar renders a fixed-width bar for 0..100.
func progressBar(progress int) string {
	progress = min(max(progress, 0), 100)
	filled := progress * progressWidth / 100
	return barStyle.Render("[" + strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled) + "]")
}
