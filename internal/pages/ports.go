package pages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/serial"
	"github.com/buckleypaul/fastcap/internal/ui"
)

type PortsPage struct {
	scan     func() tea.Cmd
	ports    []serial.PortInfo
	cursor   int
	current  string
	scanning bool
	err      error

	width, height int
}

// NewPortsPage lists serial ports via scan, normally app.ListPorts.
func NewPortsPage(current string, scan func() tea.Cmd) *PortsPage {
	return &PortsPage{current: current, scan: scan}
}

func (p *PortsPage) Init() tea.Cmd {
	p.scanning = true
	return p.scan()
}

func (p *PortsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.PortsLoadedMsg:
		p.scanning = false
		p.err = msg.Err
		p.ports = msg.Ports
		if p.cursor >= len(p.ports) {
			p.cursor = 0
		}
		return p, nil

	case app.PortSelectedMsg:
		p.current = msg.Port
		return p, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "down":
			if p.cursor < len(p.ports)-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case "r":
			p.scanning = true
			return p, p.scan()
		case "enter":
			if p.cursor < len(p.ports) {
				port := p.ports[p.cursor].Name
				return p, func() tea.Msg { return app.PortSelectedMsg{Port: port} }
			}
		}
	}
	return p, nil
}

func (p *PortsPage) View() string {
	var inner strings.Builder

	current := p.current
	if current == "" {
		current = ui.DimStyle.Render("(none)")
	}
	inner.WriteString(fmt.Sprintf("Fixture port: %s\n\n", current))

	switch {
	case p.scanning:
		inner.WriteString("Scanning...")
	case p.err != nil:
		inner.WriteString(ui.ErrorBadge("scan failed") + " " + p.err.Error())
	case len(p.ports) == 0:
		inner.WriteString(ui.DimStyle.Render("No serial ports found. Press r to rescan."))
	}

	for i, port := range p.ports {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}
		line := port.Label()
		if port.Name == p.current {
			line += " " + ui.SuccessBadge("selected")
		}
		inner.WriteString(cursor + line + "\n")
	}

	return ui.Panel("Serial Ports", inner.String(), p.width, 0, false)
}

func (p *PortsPage) Name() string { return "Ports" }

func (p *PortsPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use port")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
	}
}

func (p *PortsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
