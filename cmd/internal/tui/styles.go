package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	selectedRowBg = lipgloss.NewStyle().Background(lipgloss.Color("#1e1e2a"))

	unreadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80")).
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d474"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b45555"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1e1e2a")).
			Padding(0, 1)

	// Priority colors, keyed by the backend's priority strings.
	priorityColors = map[string]lipgloss.Color{
		"urgent": lipgloss.Color("#e06060"),
		"high":   lipgloss.Color("#f0944a"),
		"normal": lipgloss.Color("#60a0e0"),
		"low":    lipgloss.Color("#606878"),
	}

	// Connection state colors.
	stateColors = map[string]lipgloss.Color{
		"connected":       lipgloss.Color("#4ade80"),
		"connecting":      lipgloss.Color("#d4a844"),
		"disconnected":    lipgloss.Color("#b45555"),
		"authenticated":   lipgloss.Color("#4ade80"),
		"refreshing":      lipgloss.Color("#d4a844"),
		"restoring":       lipgloss.Color("#d4a844"),
		"unauthenticated": lipgloss.Color("#b45555"),
	}
)

func priorityStyle(p string) lipgloss.Style {
	if c, ok := priorityColors[p]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return metaStyle
}

func stateStyle(s string) lipgloss.Style {
	if c, ok := stateColors[s]; ok {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}
	return dimStyle
}

func renderHelp(pairs ...string) string {
	out := ""
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			out += "  "
		}
		out += helpKeyStyle.Render(pairs[i]) + " " + helpLabelStyle.Render(pairs[i+1])
	}
	return out
}
