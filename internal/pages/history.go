package pages

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/store"
	"github.com/buckleypaul/fastcap/internal/ui"
)

type historyLoadedMsg struct {
	Runs  []store.RunRecord
	Notes []store.Note
	Err   error
}

func loadHistory(s *store.Session) tea.Cmd {
	return func() tea.Msg {
		runs, err := s.Runs()
		if err != nil {
			return historyLoadedMsg{Err: err}
		}
		notes, err := s.Notes()
		return historyLoadedMsg{Runs: runs, Notes: notes, Err: err}
	}
}

type HistoryPage struct {
	session  *store.Session
	runs     []store.RunRecord
	notes    []store.Note
	noting   bool
	input    textinput.Model
	viewport viewport.Model
	now      func() time.Time

	width, height int
	message       string
}

func NewHistoryPage(s *store.Session) *HistoryPage {
	ti := textinput.New()
	ti.Placeholder = "note for the session report"
	ti.CharLimit = 256
	return &HistoryPage{
		session:  s,
		input:    ti,
		viewport: viewport.New(0, 0),
		now:      time.Now,
	}
}

func (p *HistoryPage) Init() tea.Cmd {
	return loadHistory(p.session)
}

func (p *HistoryPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if p.noting {
			switch msg.String() {
			case "enter":
				text := p.input.Value()
				p.noting = false
				p.input.Blur()
				p.input.SetValue("")
				if err := p.session.AddNote(text, p.now()); err != nil {
					p.message = fmt.Sprintf("Error saving note: %v", err)
					return p, nil
				}
				p.message = "Note added"
				return p, loadHistory(p.session)
			case "esc":
				p.noting = false
				p.input.Blur()
				return p, nil
			}
			var cmd tea.Cmd
			p.input, cmd = p.input.Update(msg)
			return p, cmd
		}

		switch msg.String() {
		case "n":
			p.noting = true
			return p, p.input.Focus()
		case "r":
			return p, loadHistory(p.session)
		}

	case historyLoadedMsg:
		if msg.Err != nil {
			p.message = fmt.Sprintf("Error loading history: %v", msg.Err)
			return p, nil
		}
		p.runs = msg.Runs
		p.notes = msg.Notes
		p.viewport.SetContent(p.render())
		return p, nil

	case runDoneMsg:
		return p, loadHistory(p.session)
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *HistoryPage) render() string {
	var b strings.Builder
	if len(p.runs) == 0 {
		b.WriteString(ui.DimStyle.Render("No runs in this session yet."))
		b.WriteString("\n")
	}
	for i := len(p.runs) - 1; i >= 0; i-- {
		r := p.runs[i]
		badge := ui.SuccessBadge(r.Outcome)
		switch r.Outcome {
		case "error":
			badge = ui.ErrorBadge(r.Outcome)
		case "cancelled":
			badge = ui.WarningBadge(r.Outcome)
		}
		b.WriteString(fmt.Sprintf("%s  %s  %d/%d shots  %s  %s\n",
			r.Timestamp.Format("15:04:05"), shortRunID(r.ID), r.Shots, r.Requested, r.Duration, badge))
		for _, phase := range []camera.Phase{camera.TopDown, camera.SideView} {
			a, ok := r.Camera[phase]
			if !ok || !a.Degraded() {
				continue
			}
			b.WriteString(ui.DegradedStyle.Render(fmt.Sprintf("    %s degraded: exposure %s, white balance %s",
				phase, a.Exposure, a.WhiteBalance)))
			b.WriteString("\n")
		}
		if r.Error != "" {
			b.WriteString(ui.DimStyle.Render("    " + r.Error))
			b.WriteString("\n")
		}
	}

	if len(p.notes) > 0 {
		b.WriteString("\n")
		b.WriteString(ui.BoldStyle.Render("Notes"))
		b.WriteString("\n")
		for _, n := range p.notes {
			b.WriteString(fmt.Sprintf("%s  %s\n", n.Timestamp.Format("15:04:05"), n.Text))
		}
	}
	return b.String()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (p *HistoryPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("History"))
	b.WriteString("\n")
	b.WriteString(ui.DimStyle.Render("  " + p.session.Dir()))
	b.WriteString("\n\n")

	if p.noting {
		b.WriteString("  New note:\n")
		b.WriteString("  " + p.input.View())
		b.WriteString("\n\n")
	}
	if p.message != "" {
		b.WriteString("  " + p.message + "\n\n")
	}
	if p.viewport.Height == 0 {
		b.WriteString(p.render())
	} else {
		b.WriteString(p.viewport.View())
	}
	return b.String()
}

func (p *HistoryPage) Name() string { return "History" }

func (p *HistoryPage) ShortHelp() []key.Binding {
	if p.noting {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add note")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "note")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
}

func (p *HistoryPage) InputCaptured() bool {
	return p.noting
}

func (p *HistoryPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	vpHeight := h - 8
	if vpHeight < 3 {
		vpHeight = 3
	}
	p.viewport.Width = w - 4
	p.viewport.Height = vpHeight
}
