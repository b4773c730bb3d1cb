package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trading-dashboard/internal/types"
)

var (
	colorGreen = lipgloss.Color("#16A34A")
	colorRed   = lipgloss.Color("#DC2626")
	colorMuted = lipgloss.Color("#6B7280")
	colorAmber = lipgloss.Color("#D97706")

	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1).
			Width(22)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
)

func classStyle(c Color) lipgloss.Style {
	switch c {
	case ColorPositive:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case ColorNegative:
		return lipgloss.NewStyle().Foreground(colorRed)
	default:
		return lipgloss.NewStyle()
	}
}

func statusStyle(s types.FieldStatus) lipgloss.Style {
	switch s {
	case types.FieldFresh:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case types.FieldStale:
		return lipgloss.NewStyle().Foreground(colorAmber)
	default:
		return lipgloss.NewStyle().Foreground(colorRed)
	}
}

// RenderText draws the dashboard for a terminal
func RenderText(d *Dashboard) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AutoTrading Dashboard"))
	b.WriteString("\n")

	switch d.State {
	case StateLoading:
		b.WriteString(mutedStyle.Render("Loading dashboard..."))
		b.WriteString("\n")
		return b.String()
	case StateError:
		msg := "backend unavailable"
		if d.Error != nil {
			msg = fmt.Sprintf("%s (%s)", d.Error.Message, d.Error.Code)
		}
		b.WriteString(classStyle(ColorNegative).Render("Error: " + msg))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("Last updated: %s  (tick #%d at %s)",
		d.LastUpdated, d.Sequence, d.RefreshedAt)))
	b.WriteString("\n")

	cards := []string{
		card("Total Asset", d.TotalAsset, lipgloss.NewStyle()),
		card("Total Return", d.TotalReturn.Text, classStyle(d.TotalReturn.Class)),
		card("Win Rate", d.WinRate, lipgloss.NewStyle()),
		card("Total Trades", fmt.Sprintf("%d", d.TotalTrades), lipgloss.NewStyle()),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n")

	b.WriteString(renderFields(d.Fields))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Recent Trades"))
	b.WriteString("\n")
	if len(d.RecentTrades) == 0 {
		b.WriteString(mutedStyle.Render("No trades"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-22s %-5s %14s %16s %s", "TIME", "TYPE", "AMOUNT", "PRICE", "STATUS")))
	b.WriteString("\n")
	for _, row := range d.RecentTrades {
		b.WriteString(fmt.Sprintf("%-22s %s %14s %16s %s\n",
			row.Time,
			classStyle(row.TypeClass).Render(fmt.Sprintf("%-5s", row.Type)),
			row.Amount,
			row.Price,
			classStyle(row.StatusClass).Render(row.Status),
		))
	}

	return b.String()
}

func card(label, value string, valueStyle lipgloss.Style) string {
	return cardStyle.Render(mutedStyle.Render(label) + "\n" + valueStyle.Bold(true).Render(value))
}

func renderFields(fields map[types.Resource]types.FieldStatus) string {
	parts := make([]string, 0, len(types.AllResources))
	for _, r := range types.AllResources {
		status := fields[r]
		parts = append(parts, fmt.Sprintf("%s: %s", r, statusStyle(status).Render(string(status))))
	}
	return strings.Join(parts, "  ")
}
