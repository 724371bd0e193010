package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/erg0nix/docchat/internal/core"
)

var (
	colorPrimary = lipgloss.Color("#7C71F9")
	colorSuccess = lipgloss.Color("#34D399")
	colorError   = lipgloss.Color("#F87171")
	colorWarning = lipgloss.Color("#FBBF24")
	colorDim     = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#60A5FA")
)

var (
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)

	styleCommand = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	stylePrompt = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	styleTableHeader = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	styleActive = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	stylePID    = lipgloss.NewStyle().Foreground(colorAccent)
)

var roleStyles = map[core.Role]lipgloss.Style{
	core.RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	core.RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(colorSuccess),
	core.RoleSystem:    lipgloss.NewStyle().Bold(true).Foreground(colorDim),
}

var roleLabels = map[core.Role]string{
	core.RoleUser:      "you",
	core.RoleAssistant: "assistant",
	core.RoleSystem:    "system",
}

func roleLabel(role core.Role) string {
	label, ok := roleLabels[role]
	if !ok {
		label = string(role)
	}
	if style, ok := roleStyles[role]; ok {
		return style.Render(label)
	}
	return styleDim.Render(label)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
}

func styledError(msg string, hints ...string) string {
	out := styleError.Render(msg)
	for _, h := range hints {
		out += "\n  " + styleDim.Render(h)
	}
	return out
}
