package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/samcharles93/smolchat/internal/inference"
)

var (
	colorUser      = lipgloss.Color("#FF6B6B")
	colorAssistant = lipgloss.Color("#4ECDC4")
	colorSystem    = lipgloss.Color("#FFE66D")
	colorDim       = lipgloss.Color("#6B7280")
	colorWarning   = lipgloss.Color("#FBBF24")
	colorError     = lipgloss.Color("#F87171")
)

var (
	styleUser      = lipgloss.NewStyle().Bold(true).Foreground(colorUser)
	styleAssistant = lipgloss.NewStyle().Bold(true).Foreground(colorAssistant)
	styleSystem    = lipgloss.NewStyle().Bold(true).Foreground(colorSystem)
	styleDim       = lipgloss.NewStyle().Foreground(colorDim)
	styleWarning   = lipgloss.NewStyle().Foreground(colorWarning)
	styleError     = lipgloss.NewStyle().Foreground(colorError)

	styleBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAssistant).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

func roleStyle(r inference.Role) lipgloss.Style {
	switch r {
	case inference.RoleUser:
		return styleUser
	case inference.RoleAssistant:
		return styleAssistant
	default:
		return styleSystem
	}
}

// statsLine summarizes a finished turn. Context use turns yellow above 80%
// and red above 95%.
func statsLine(m inference.Metrics) string {
	pct := 0
	if m.ContextSize > 0 {
		pct = m.ContextUsed * 100 / m.ContextSize
	}
	ctxStyle := styleDim
	switch {
	case pct > 95:
		ctxStyle = styleError
	case pct > 80:
		ctxStyle = styleWarning
	}
	return styleDim.Render(fmt.Sprintf("%d tokens, %.1f tok/s, %.2fs", m.TokensGenerated, m.TokensPerSecond, m.GenerationTime.Seconds())) +
		styleDim.Render(" | ctx ") +
		ctxStyle.Render(fmt.Sprintf("%d/%d (%d%%)", m.ContextUsed, m.ContextSize, pct))
}
