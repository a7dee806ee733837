package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// PageID identifies each page in the application.
type PageID int

const (
	CapturePage PageID = iota
	HistoryPage
	PortsPage
	SettingsPage
)

var PageOrder = []PageID{
	CapturePage,
	HistoryPage,
	PortsPage,
	SettingsPage,
}

// Page is the interface every page in the application implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// InputCapturer is an optional interface for pages with text inputs.
// When InputCaptured returns true, the app forwards all keys directly
// to the page instead of processing shortcuts like q, ?, left, etc.
type InputCapturer interface {
	InputCaptured() bool
}

// PortSelectedMsg is broadcast to all pages when a serial port is selected.
type PortSelectedMsg struct {
	Port string
}

// RunStateMsg is sent by the capture page when a run starts or ends so the
// station bar can show it.
type RunStateMsg struct {
	RunID   string
	Running bool
}
