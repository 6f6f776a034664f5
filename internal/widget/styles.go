package widget

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/boshu2/contextcompass/internal/usage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	handoffStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// tierColors are the gauge colors per tier.
var tierColors = map[usage.Tier]lipgloss.Color{
	usage.TierNormal:  lipgloss.Color("42"),
	usage.TierWarning: lipgloss.Color("214"),
	usage.TierDanger:  lipgloss.Color("196"),
}

// TierStyle colors text for a tier.
func TierStyle(t usage.Tier) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(tierColors[t])
}
