package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/serial"
)

// PortsLoadedMsg carries the result of a serial port scan.
type PortsLoadedMsg struct {
	Ports []serial.PortInfo
	Err   error
}

// ListPorts scans for serial ports in the background.
func ListPorts() tea.Cmd {
	return func() tea.Msg {
		ports, err := serial.ListPorts()
		return PortsLoadedMsg{Ports: ports, Err: err}
	}
}
