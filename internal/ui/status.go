package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/wayidle/internal/history"
	"github.com/bnema/wayidle/internal/ipc"
	"github.com/charmbracelet/lipgloss"
)

// RenderStatus renders a status response as a boxed summary with one row
// per tier.
func RenderStatus(status *ipc.StatusInfo) string {
	return BoxStyle.Render(RenderStatusBody(status))
}

// RenderStatusBody is RenderStatus without the surrounding box.
func RenderStatusBody(status *ipc.StatusInfo) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("wayidle"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render("Idle for:"), FormatDuration(status.IdleFor)))
	if !status.PokeTime.IsZero() {
		b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render("Last activity:"), status.PokeTime.Local().Format("15:04:05")))
	}
	if status.HasNextTier {
		next := fmt.Sprintf("%s (in %s)", FormatDuration(status.NextTier), FormatDuration(status.NextTier-status.IdleFor))
		if name := tierName(status, status.NextTier); name != "" {
			next = name + " at " + next
		}
		b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render("Next tier:"), next))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render("Next tier:"), SubtleStyle.Render("none")))
	}

	if len(status.Tiers) == 0 {
		b.WriteString("\n" + SubtleStyle.Render("No tiers registered"))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(renderTable(
		[]string{"TIER", "TIMEOUT", "OBSERVERS", "STATE"},
		tierRows(status),
	))
	return b.String()
}

func tierRows(status *ipc.StatusInfo) [][]string {
	rows := make([][]string, 0, len(status.Tiers))
	for _, tier := range status.Tiers {
		name := tier.Name
		if name == "" {
			name = SubtleStyle.Render("-")
		}
		rows = append(rows, []string{
			name,
			FormatDuration(tier.Timeout),
			fmt.Sprintf("%d", tier.Observers),
			FormatTierState(tier.Idle),
		})
	}
	return rows
}

func tierName(status *ipc.StatusInfo, timeout time.Duration) string {
	for _, tier := range status.Tiers {
		if tier.Timeout == timeout && tier.Name != "" {
			return tier.Name
		}
	}
	return ""
}

// RenderHistory renders stored transitions, newest first.
func RenderHistory(rows []*history.Transition) string {
	if len(rows) == 0 {
		return SubtleStyle.Render("No transitions recorded")
	}

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []string{
			row.At.Local().Format("2006-01-02 15:04:05"),
			row.Tier,
			FormatDuration(row.TimeoutDuration()),
			FormatTierState(row.State == "idle"),
		})
	}
	return renderTable([]string{"TIME", "TIER", "TIMEOUT", "STATE"}, cells)
}

// renderTable lays out rows in columns sized to the widest cell.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	renderRow := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			parts[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{renderRow(header, &TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, nil))
	}
	return strings.Join(lines, "\n")
}
