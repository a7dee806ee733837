package pages

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/serial"
)

func TestPortsPageSelectsPort(t *testing.T) {
	scanner := &fakeScanner{ports: []serial.PortInfo{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
		{Name: "/dev/ttyS0"},
	}}
	p := NewPortsPage("", scanner.scan)
	p.SetSize(80, 20)

	p.Update(p.Init()())
	if len(p.ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(p.ports))
	}

	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected selection command")
	}
	sel, ok := cmd().(app.PortSelectedMsg)
	if !ok || sel.Port != "/dev/ttyS0" {
		t.Fatalf("expected /dev/ttyS0 selected, got %#v", sel)
	}

	p.Update(sel)
	if !strings.Contains(p.View(), "Fixture port: /dev/ttyS0") {
		t.Errorf("expected current port in view:\n%s", p.View())
	}
}

func TestPortsPageRescan(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("permission denied")}
	p := NewPortsPage("COM3", scanner.scan)
	p.SetSize(80, 20)

	p.Update(p.Init()())
	if !strings.Contains(p.View(), "permission denied") {
		t.Errorf("expected scan error in view:\n%s", p.View())
	}

	p.Update(keyRunes("r"))
	if scanner.scans != 2 {
		t.Errorf("expected 2 scans, got %d", scanner.scans)
	}
}
