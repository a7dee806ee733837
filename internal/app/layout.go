package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/fastcap/internal/ui"
)

const sidebarWidth = 22 // 20 content + 2 border/padding

func renderStationBar(port, sessionDir, activeRun string, width int, sidebarFocused bool) string {
	portDisplay := port
	if portDisplay == "" {
		portDisplay = "(none)"
	}
	port = ui.AccentStyle.Background(ui.Surface).Render(portDisplay)
	session := lipgloss.NewStyle().Foreground(ui.Secondary).Background(ui.Surface).Render(filepath.Base(sessionDir))
	content := fmt.Sprintf("Port: %s  Session: %s", port, session)
	if activeRun != "" {
		content += "  " + ui.WarningBadge("RUN "+shortID(activeRun))
	}
	hint := ""
	if sidebarFocused {
		hint = ui.DimStyle.Render("  [p] change port")
	}
	return ui.StatusBarStyle.Width(width).Render(content + hint)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, height int, focused bool) string {
	var b strings.Builder
	title := "fastcap"
	if focused {
		title = ui.BoldStyle.Render("fastcap [FOCUSED]")
	} else {
		title = ui.TitleStyle.Render("fastcap")
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, id := range pages {
		p := pageMap[id]
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea) string {
	var parts []string

	// Focus-specific instructions
	if focus == FocusSidebar {
		parts = append(parts,
			ui.StatusKey("↑/↓", "navigate"),
			ui.StatusKey("enter", "select"),
			ui.StatusKey("p", "port"),
		)
	} else {
		// Page-specific keys when content is focused
		for _, kb := range pageHelp {
			if kb.Enabled() {
				parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
			}
		}
	}

	// Always add global keys
	parts = append(parts,
		ui.StatusKey("tab", "focus"),
		ui.StatusKey("?", "help"),
		ui.StatusKey("q", "quit"),
	)

	line := strings.Join(parts, "  ")
	return ui.StatusBarStyle.Width(width).Render(line)
}

func renderLayout(stationBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, stationBar, main, statusBar)
}
