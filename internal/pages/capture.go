package pages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/label"
	"github.com/buckleypaul/fastcap/internal/ui"
)

// RunStarter starts capture runs. *capture.Controller implements it.
type RunStarter interface {
	StartRun(ctx context.Context, req capture.Request) (*capture.RunHandle, error)
}

type shotMsg struct {
	RunID string
	Shot  capture.Shot
}

type faultMsg struct {
	RunID string
	Err   *capture.Error
}

type runDoneMsg struct {
	Completion capture.Completion
}

type runStartedMsg struct {
	Handle *capture.RunHandle
}

type startFailedMsg struct {
	Err error
}

// startRun opens the run off the UI loop; dialing the fixture may retry
// for the whole link-open budget.
func startRun(ctx context.Context, runner RunStarter, req capture.Request) tea.Cmd {
	return func() tea.Msg {
		h, err := runner.StartRun(ctx, req)
		if err != nil {
			return startFailedMsg{Err: err}
		}
		return runStartedMsg{Handle: h}
	}
}

// waitForRun blocks until the run produces its next event. The page
// re-issues it after every event until the run is done.
func waitForRun(h *capture.RunHandle) tea.Cmd {
	return func() tea.Msg {
		frames, faults := h.Frames(), h.Faults()
		for frames != nil || faults != nil {
			select {
			case s, ok := <-frames:
				if !ok {
					frames = nil
					continue
				}
				return shotMsg{RunID: h.ID(), Shot: s}
			case e, ok := <-faults:
				if !ok {
					faults = nil
					continue
				}
				return faultMsg{RunID: h.ID(), Err: e}
			}
		}
		return runDoneMsg{Completion: h.Wait()}
	}
}

const (
	rowType = iota
	rowSystem
	rowShots
	rowLive
	fixedRows
)

const (
	captureLabelWidth = 20
	maxFaultLines     = 5
	previewWidth      = 40
)

var systems = []label.MeasurementSystem{label.Metric, label.Imperial}

type CapturePage struct {
	ctx    context.Context
	runner RunStarter
	cfg    *config.Config

	// Form
	typeIdx   int
	systemIdx int
	shots     int
	live      bool
	attrs     map[label.FastenerType]map[string]string
	cursor    int
	editing   bool
	input     textinput.Model

	// Run
	starting bool
	handle   *capture.RunHandle
	shotsNow int
	lastPath string
	preview  string
	faults   []string
	result   *capture.Completion
	output   strings.Builder
	viewport viewport.Model

	width, height int
	message       string
}

func NewCapturePage(ctx context.Context, runner RunStarter, cfg *config.Config) *CapturePage {
	ti := textinput.New()
	ti.CharLimit = 64
	attrs := make(map[label.FastenerType]map[string]string)
	for _, t := range label.Types {
		attrs[t] = make(map[string]string)
	}
	return &CapturePage{
		ctx:      ctx,
		runner:   runner,
		cfg:      cfg,
		shots:    cfg.ShotCount,
		attrs:    attrs,
		input:    ti,
		viewport: viewport.New(0, 0),
	}
}

func (p *CapturePage) Init() tea.Cmd { return nil }

func (p *CapturePage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return p.handleKey(msg)

	case shotMsg:
		if !p.owns(msg.RunID) {
			return p, nil
		}
		p.shotsNow = msg.Shot.Index + 1
		p.lastPath = msg.Shot.Path
		if msg.Shot.Preview != nil {
			p.preview = ui.Thumbnail(msg.Shot.Preview, previewWidth)
		}
		p.appendLine(fmt.Sprintf("shot %d  %-9s  %s", msg.Shot.Index, msg.Shot.Phase, msg.Shot.Path))
		return p, waitForRun(p.handle)

	case faultMsg:
		if !p.owns(msg.RunID) {
			return p, nil
		}
		line := msg.Err.Error()
		p.faults = append(p.faults, line)
		if len(p.faults) > maxFaultLines {
			p.faults = p.faults[len(p.faults)-maxFaultLines:]
		}
		p.appendLine("warning: " + line)
		return p, waitForRun(p.handle)

	case runStartedMsg:
		if !p.starting {
			return p, nil
		}
		return p, p.started(msg.Handle)

	case startFailedMsg:
		if !p.starting {
			return p, nil
		}
		p.starting = false
		p.message = fmt.Sprintf("Start failed: %v", msg.Err)
		return p, nil

	case runDoneMsg:
		if !p.owns(msg.Completion.RunID) {
			return p, nil
		}
		c := msg.Completion
		p.result = &c
		p.handle = nil
		p.message = completionSummary(c)
		p.appendLine(p.message)
		runID := c.RunID
		return p, func() tea.Msg { return app.RunStateMsg{RunID: runID, Running: false} }
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *CapturePage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.editing {
		switch msg.String() {
		case "enter":
			p.applyValue(p.input.Value())
			p.editing = false
			p.input.Blur()
			return p, nil
		case "esc":
			p.editing = false
			p.input.Blur()
			return p, nil
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return p, cmd
	}

	switch msg.String() {
	case "down":
		if p.cursor < p.rowCount()-1 {
			p.cursor++
		}
	case "up":
		if p.cursor > 0 {
			p.cursor--
		}
	case "left":
		p.cycle(-1)
	case "right", " ":
		p.cycle(1)
	case "enter", "e":
		if p.cursor == rowType || p.cursor == rowSystem || p.cursor == rowLive {
			p.cycle(1)
			return p, nil
		}
		p.editing = true
		p.input.SetValue(p.value(p.cursor))
		return p, p.input.Focus()
	case "r":
		return p, p.start()
	case "x":
		if p.handle != nil {
			p.handle.Cancel()
			p.message = "Cancelling after the current shot..."
		}
	case "c":
		if p.handle == nil {
			p.output.Reset()
			p.viewport.SetContent("")
			p.faults = nil
			p.result = nil
			p.preview = ""
			p.message = ""
		}
	default:
		var cmd tea.Cmd
		p.viewport, cmd = p.viewport.Update(msg)
		return p, cmd
	}
	return p, nil
}

func (p *CapturePage) start() tea.Cmd {
	if p.handle != nil || p.starting {
		p.message = "A run is already in progress"
		return nil
	}
	ft := p.fastenerType()
	attrs := make(map[string]string)
	for k, v := range p.attrs[ft] {
		if strings.TrimSpace(v) != "" {
			attrs[k] = v
		}
	}
	req := capture.Request{
		Label: label.Input{
			Type:       ft,
			System:     systems[p.systemIdx],
			Attributes: attrs,
		},
		Shots:    p.shots,
		LiveFeed: p.live,
	}

	p.starting = true
	p.message = "Opening fixture link..."
	return startRun(p.ctx, p.runner, req)
}

func (p *CapturePage) started(h *capture.RunHandle) tea.Cmd {
	p.starting = false
	p.handle = h
	p.shotsNow = 0
	p.lastPath = ""
	p.preview = ""
	p.faults = nil
	p.result = nil
	p.output.Reset()
	p.message = fmt.Sprintf("Run %s started", h.ID())
	p.appendLine(fmt.Sprintf("run %s -> %s", h.ID(), h.Dir()))

	runID := h.ID()
	return tea.Batch(
		waitForRun(h),
		func() tea.Msg { return app.RunStateMsg{RunID: runID, Running: true} },
	)
}

func (p *CapturePage) owns(runID string) bool {
	return p.handle != nil && p.handle.ID() == runID
}

func (p *CapturePage) appendLine(s string) {
	p.output.WriteString(s)
	p.output.WriteString("\n")
	p.viewport.SetContent(p.output.String())
	p.viewport.GotoBottom()
}

func (p *CapturePage) fastenerType() label.FastenerType {
	return label.Types[p.typeIdx]
}

func (p *CapturePage) rowCount() int {
	return fixedRows + len(label.Fields(p.fastenerType()))
}

func (p *CapturePage) cycle(dir int) {
	switch p.cursor {
	case rowType:
		p.typeIdx = (p.typeIdx + len(label.Types) + dir) % len(label.Types)
	case rowSystem:
		p.systemIdx = (p.systemIdx + len(systems) + dir) % len(systems)
	case rowLive:
		p.live = !p.live
	}
}

func (p *CapturePage) rowLabel(row int) string {
	switch row {
	case rowType:
		return "Fastener Type"
	case rowSystem:
		return "Measurement"
	case rowShots:
		return "Shots"
	case rowLive:
		return "Live Feed"
	}
	f := label.Fields(p.fastenerType())[row-fixedRows]
	name := strings.ReplaceAll(f.Key, "_", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

func (p *CapturePage) value(row int) string {
	switch row {
	case rowType:
		return string(p.fastenerType())
	case rowSystem:
		return string(systems[p.systemIdx])
	case rowShots:
		return strconv.Itoa(p.shots)
	case rowLive:
		if p.live {
			return "on"
		}
		return "off"
	}
	f := label.Fields(p.fastenerType())[row-fixedRows]
	return p.attrs[p.fastenerType()][f.Key]
}

func (p *CapturePage) applyValue(val string) {
	val = strings.TrimSpace(val)
	if p.cursor == rowShots {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			p.message = fmt.Sprintf("Invalid shot count %q", val)
			return
		}
		p.shots = n
		p.message = ""
		return
	}
	if p.cursor < fixedRows {
		return
	}
	f := label.Fields(p.fastenerType())[p.cursor-fixedRows]
	p.message = ""
	if f.Dimension && val != "" {
		system := systems[p.systemIdx]
		v, err := label.ParseDimension(val, system)
		if err != nil {
			p.message = fmt.Sprintf("%s: %v", p.rowLabel(p.cursor), err)
			return
		}
		if system == label.Imperial {
			p.message = fmt.Sprintf("%s = %s in", f.Key, label.FormatFraction(v))
		}
	}
	p.attrs[p.fastenerType()][f.Key] = val
}

func completionSummary(c capture.Completion) string {
	switch {
	case c.Err != nil:
		return fmt.Sprintf("Run failed after %d/%d shots: %v", c.Shots, c.Requested, c.Err)
	case c.Cancelled:
		return fmt.Sprintf("Run cancelled after %d/%d shots", c.Shots, c.Requested)
	case c.Reason == capture.ReasonFinishedImaging:
		return fmt.Sprintf("Fixture finished imaging: %d/%d shots in %s", c.Shots, c.Requested, c.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("Run complete: %d shots in %s", c.Shots, c.Duration.Round(time.Millisecond))
}

func (p *CapturePage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("Capture"))
	b.WriteString("\n")

	focused := lipgloss.NewStyle().Foreground(ui.Primary).Bold(true)
	for i := 0; i < p.rowCount(); i++ {
		cursor := "  "
		name := fmt.Sprintf("%-*s", captureLabelWidth, p.rowLabel(i))
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
			name = focused.Render(name)
		}
		val := p.value(i)
		if val == "" {
			val = ui.DimStyle.Render("(not set)")
		}
		if i == rowType || i == rowSystem || i == rowLive {
			val = "◂ " + val + " ▸"
		}
		b.WriteString(cursor + name + " " + val + "\n")
	}

	if p.editing {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  Edit %s:\n", p.rowLabel(p.cursor)))
		b.WriteString("  " + p.input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if p.handle != nil {
		b.WriteString(fmt.Sprintf("  %s %d/%d  %s\n",
			ui.Progress(p.shotsNow, p.handle.Requested(), 20),
			p.shotsNow, p.handle.Requested(),
			ui.DimStyle.Render(p.handle.State().String())))
	} else if p.result != nil {
		badge := ui.SuccessBadge(string(p.result.Reason))
		if !p.result.OK() {
			badge = ui.ErrorBadge(string(p.result.Reason))
		}
		b.WriteString("  " + badge + "\n")
	}

	if p.preview != "" {
		b.WriteString("\n" + ui.PreviewStyle.Render(p.preview) + "\n")
	}
	if p.message != "" {
		b.WriteString("  " + p.message + "\n")
	}
	for _, f := range p.faults {
		b.WriteString(ui.FaultStyle.Render(f) + "\n")
	}

	if p.output.Len() > 0 {
		b.WriteString("\n")
		b.WriteString(p.viewport.View())
	} else if p.handle == nil {
		b.WriteString(ui.DimStyle.Render("  Press r to start a run."))
		b.WriteString("\n")
	}
	return b.String()
}

func (p *CapturePage) Name() string { return "Capture" }

func (p *CapturePage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	if p.handle != nil {
		return []key.Binding{
			key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel run")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "start run")),
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	}
}

func (p *CapturePage) InputCaptured() bool {
	return p.editing
}

func (p *CapturePage) SetSize(w, h int) {
	p.width = w
	p.height = h
	vpHeight := h - fixedRows - 20
	if vpHeight < 3 {
		vpHeight = 3
	}
	p.viewport.Width = w - 4
	p.viewport.Height = vpHeight
}
