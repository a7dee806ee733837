package pages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/ui"
)

type settingField struct {
	label string
	key   string
}

var settingFields = []settingField{
	{"Serial Port", "serial_port"},
	{"Serial Baud Rate", "serial_baud_rate"},
	{"Shot Count", "shot_count"},
	{"Image Format", "image_format"},
	{"Platform Version", "platform_version"},
	{"Platform Config", "platform_configuration"},
	{"Top-Down Exposure", "top_down.exposure_us"},
	{"Top-Down WB", "top_down.white_balance"},
	{"Side-View Exposure", "side_view.exposure_us"},
	{"Side-View WB", "side_view.white_balance"},
	{"Poll Interval ms", "poll_interval_ms"},
	{"Acquire Floor ms", "acquire_floor_ms"},
	{"Acquire Margin ms", "acquire_margin_ms"},
}

type SettingsPage struct {
	cfg           *config.Config
	workspaceRoot string
	onSave        func(config.Config)
	cursor        int
	editing       bool
	input         textinput.Model
	width, height int
	message       string
}

// NewSettingsPage edits cfg in place. onSave, if set, is called with the
// saved configuration.
func NewSettingsPage(cfg *config.Config, workspaceRoot string, onSave func(config.Config)) *SettingsPage {
	ti := textinput.New()
	ti.CharLimit = 128
	return &SettingsPage{
		cfg:           cfg,
		workspaceRoot: workspaceRoot,
		onSave:        onSave,
		input:         ti,
	}
}

func (p *SettingsPage) Init() tea.Cmd { return nil }

func (p *SettingsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.PortSelectedMsg:
		p.cfg.SerialPort = msg.Port
		return p, nil

	case tea.KeyMsg:
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
			if p.cursor < len(settingFields)-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case "enter", "e":
			p.editing = true
			p.input.SetValue(p.getValue(p.cursor))
			p.input.Focus()
			return p, p.input.Focus()
		case "s":
			p.save()
		}
	}
	return p, nil
}

func (p *SettingsPage) save() {
	if err := p.cfg.Validate(); err != nil {
		p.message = fmt.Sprintf("Not saved: %v", err)
		return
	}
	if err := config.Save(*p.cfg, p.workspaceRoot, false); err != nil {
		p.message = fmt.Sprintf("Error saving: %v", err)
		return
	}
	if p.onSave != nil {
		p.onSave(*p.cfg)
	}
	p.message = "Settings saved to workspace"
}

func (p *SettingsPage) View() string {
	var inner strings.Builder

	for i, f := range settingFields {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}

		val := p.getValue(i)
		if val == "" {
			val = ui.DimStyle.Render("(not set)")
		}

		line := fmt.Sprintf("%s%-20s %s", cursor, f.label, val)
		inner.WriteString(line)
		inner.WriteString("\n")
	}

	if p.editing {
		inner.WriteString("\n")
		inner.WriteString(fmt.Sprintf("  Edit %s:\n", settingFields[p.cursor].label))
		inner.WriteString("  " + p.input.View())
		inner.WriteString("\n")
		inner.WriteString(ui.DimStyle.Render(editHint(settingFields[p.cursor].key)))
		inner.WriteString("\n")
	}

	if p.message != "" {
		inner.WriteString("\n  " + p.message)
	}

	return ui.Panel("Settings", inner.String(), p.width, 0, false)
}

func editHint(key string) string {
	switch {
	case strings.HasSuffix(key, "exposure_us"):
		return "  microseconds, 0 or auto for auto exposure"
	case strings.HasSuffix(key, "white_balance"):
		return "  auto, or red,blue ratios such as 1.8,1.4"
	case key == "image_format":
		return "  png, jpg or fits"
	}
	return ""
}

func (p *SettingsPage) Name() string { return "Settings" }

func (p *SettingsPage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save to disk")),
	}
}

func (p *SettingsPage) InputCaptured() bool {
	return p.editing
}

func (p *SettingsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *SettingsPage) phase(key string) *config.Phase {
	if strings.HasPrefix(key, "top_down.") {
		return &p.cfg.TopDown
	}
	return &p.cfg.SideView
}

func (p *SettingsPage) getValue(idx int) string {
	k := settingFields[idx].key
	switch k {
	case "serial_port":
		return p.cfg.SerialPort
	case "serial_baud_rate":
		return strconv.Itoa(p.cfg.SerialBaudRate)
	case "shot_count":
		return strconv.Itoa(p.cfg.ShotCount)
	case "image_format":
		return p.cfg.ImageFormat
	case "platform_version":
		return p.cfg.PlatformVersion
	case "platform_configuration":
		return p.cfg.PlatformConfiguration
	case "top_down.exposure_us", "side_view.exposure_us":
		if us := p.phase(k).ExposureMicros; us > 0 {
			return strconv.Itoa(us)
		}
		return "auto"
	case "top_down.white_balance", "side_view.white_balance":
		wb := p.phase(k).WhiteBalance
		if wb.Auto {
			return "auto"
		}
		return fmt.Sprintf("%g,%g", wb.Red, wb.Blue)
	case "poll_interval_ms":
		return strconv.Itoa(p.cfg.PollIntervalMS)
	case "acquire_floor_ms":
		return strconv.Itoa(p.cfg.AcquireFloorMS)
	case "acquire_margin_ms":
		return strconv.Itoa(p.cfg.AcquireMarginMS)
	}
	return ""
}

func (p *SettingsPage) applyValue(val string) {
	val = strings.TrimSpace(val)
	f := settingFields[p.cursor]
	setInt := func(dst *int) bool {
		n, err := strconv.Atoi(val)
		if err != nil {
			return false
		}
		*dst = n
		return true
	}

	ok := true
	switch f.key {
	case "serial_port":
		p.cfg.SerialPort = val
	case "serial_baud_rate":
		ok = setInt(&p.cfg.SerialBaudRate)
	case "shot_count":
		ok = setInt(&p.cfg.ShotCount)
	case "image_format":
		p.cfg.ImageFormat = strings.ToLower(val)
	case "platform_version":
		p.cfg.PlatformVersion = val
	case "platform_configuration":
		p.cfg.PlatformConfiguration = val
	case "top_down.exposure_us", "side_view.exposure_us":
		if strings.EqualFold(val, "auto") || val == "" {
			p.phase(f.key).ExposureMicros = 0
		} else {
			ok = setInt(&p.phase(f.key).ExposureMicros)
		}
	case "top_down.white_balance", "side_view.white_balance":
		wb, err := parseWhiteBalance(val)
		if err != nil {
			ok = false
		} else {
			p.phase(f.key).WhiteBalance = wb
		}
	case "poll_interval_ms":
		ok = setInt(&p.cfg.PollIntervalMS)
	case "acquire_floor_ms":
		ok = setInt(&p.cfg.AcquireFloorMS)
	case "acquire_margin_ms":
		ok = setInt(&p.cfg.AcquireMarginMS)
	}
	if !ok {
		p.message = fmt.Sprintf("Invalid value for %s: %q", f.label, val)
		return
	}
	p.message = fmt.Sprintf("%s updated", f.label)
}

func parseWhiteBalance(s string) (config.WhiteBalance, error) {
	if s == "" || strings.EqualFold(s, "auto") {
		return config.WhiteBalance{Auto: true}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return config.WhiteBalance{}, fmt.Errorf("want red,blue")
	}
	red, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return config.WhiteBalance{}, err
	}
	blue, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return config.WhiteBalance{}, err
	}
	if red <= 0 || blue <= 0 {
		return config.WhiteBalance{}, fmt.Errorf("ratios must be positive")
	}
	return config.WhiteBalance{Red: red, Blue: blue}, nil
}
