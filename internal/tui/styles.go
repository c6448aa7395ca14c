package tui

import "github.com/charmbracelet/lipgloss"

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(cardWidth - 2)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func kindColor(kind, severity string) lipgloss.Color {
	switch kind {
	case "success":
		return lipgloss.Color("42")
	case "error":
		return lipgloss.Color("196")
	case "warning":
		return lipgloss.Color("214")
	case "alert":
		switch severity {
		case "critical":
			return lipgloss.Color("199")
		case "high":
			return lipgloss.Color("202")
		case "medium":
			return lipgloss.Color("220")
		}
		return lipgloss.Color("111")
	}
	return lipgloss.Color("75")
}
