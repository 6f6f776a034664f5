package widget

import (
	"fmt"
	"strings"

	"github.com/boshu2/contextcompass/internal/usage"
)

// DefaultGaugeWidth is the bar width in cells.
const DefaultGaugeWidth = 30

// GaugeBar returns the uncolored bar for u: filled cells for the percentage
// used followed by empty cells.
func GaugeBar(u usage.Usage, width int) string {
	if width <= 0 {
		width = DefaultGaugeWidth
	}
	filled := int(u.Percent / 100 * float64(width))
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// RenderGauge is the colored bar followed by the whole percentage.
func RenderGauge(u usage.Usage, width int) string {
	style := TierStyle(u.Tier)
	return style.Render(GaugeBar(u, width)) + " " + style.Render(fmt.Sprintf("%d%%", u.PercentUsed))
}
