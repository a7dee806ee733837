package pages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/label"
	"github.com/buckleypaul/fastcap/internal/store"
	"github.com/buckleypaul/fastcap/internal/transform"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestController(t *testing.T, fx *fakeFixture, opts ...capture.Option) (*capture.Controller, *store.Session) {
	t.Helper()
	sess, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	s := capture.DefaultSettings()
	s.PollInterval = time.Millisecond
	s.AcquireFloor = 10 * time.Millisecond
	s.AcquireMargin = 10 * time.Millisecond
	all := append([]capture.Option{capture.WithSettings(s), capture.WithLogger(zap.NewNop())}, opts...)
	ctl := capture.New(camera.NewSimulator(), sess, fx.dial, all...)
	return ctl, sess
}

// pressStart presses r and delivers the start command's result.
func pressStart(t *testing.T, p *CapturePage) tea.Msg {
	t.Helper()
	_, cmd := p.Update(keyRunes("r"))
	if cmd == nil {
		t.Fatalf("expected a start command: %s", p.message)
	}
	msg := cmd()
	p.Update(msg)
	return msg
}

// drive feeds run events into the page until the run completes.
func drive(t *testing.T, p *CapturePage) runDoneMsg {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if p.handle == nil {
			t.Fatal("no run in progress")
		}
		msgCh := make(chan tea.Msg, 1)
		go func(h *capture.RunHandle) { msgCh <- waitForRun(h)() }(p.handle)
		select {
		case msg := <-msgCh:
			p.Update(msg)
			if done, ok := msg.(runDoneMsg); ok {
				return done
			}
		case <-deadline:
			t.Fatal("run did not complete")
		}
	}
}

func TestCapturePageRunsToCompletion(t *testing.T) {
	ctl, sess := newTestController(t, &fakeFixture{})
	cfg := config.Defaults()
	cfg.ShotCount = 3
	p := NewCapturePage(context.Background(), ctl, &cfg)

	pressStart(t, p)
	if p.handle == nil {
		t.Fatalf("run not started: %s", p.message)
	}

	done := drive(t, p)
	if done.Completion.Shots != 3 || !done.Completion.OK() {
		t.Fatalf("unexpected completion %+v", done.Completion)
	}
	if p.handle != nil {
		t.Error("handle should be cleared after completion")
	}
	if p.shotsNow != 3 {
		t.Errorf("expected 3 shots shown, got %d", p.shotsNow)
	}
	if !strings.Contains(p.View(), "Run complete: 3 shots") {
		t.Errorf("view should show the outcome:\n%s", p.View())
	}
	runs, _ := sess.Runs()
	if len(runs) != 1 {
		t.Errorf("expected run recorded, got %d", len(runs))
	}
}

func TestCapturePageCancel(t *testing.T) {
	ctl, _ := newTestController(t, &fakeFixture{silent: true})
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), ctl, &cfg)

	pressStart(t, p)
	if p.handle == nil {
		t.Fatalf("run not started: %s", p.message)
	}
	p.Update(keyRunes("x"))

	done := drive(t, p)
	if !done.Completion.Cancelled {
		t.Fatalf("expected cancelled completion, got %+v", done.Completion)
	}
	if !strings.Contains(p.message, "cancelled") {
		t.Errorf("unexpected message %q", p.message)
	}
}

func TestCapturePageBuildsRequest(t *testing.T) {
	starter := &fakeStarter{err: errors.New("port busy")}
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), starter, &cfg)

	// Washer, imperial, live feed on.
	p.Update(tea.KeyMsg{Type: tea.KeyRight})
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p.Update(tea.KeyMsg{Type: tea.KeyRight})
	p.Update(tea.KeyMsg{Type: tea.KeyDown})

	// Shots
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !p.InputCaptured() {
		t.Fatal("expected shot count to be editable")
	}
	p.input.SetValue("5")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})

	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !p.live {
		t.Fatal("expected live feed toggled on")
	}

	// First washer attribute: inner diameter
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p.input.SetValue("5/32")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if _, ok := pressStart(t, p).(startFailedMsg); !ok {
		t.Fatal("expected the start to fail")
	}

	if len(starter.calls) != 1 {
		t.Fatalf("expected 1 start call, got %d", len(starter.calls))
	}
	req := starter.calls[0].req
	if req.Label.Type != label.Washer || req.Label.System != label.Imperial {
		t.Errorf("unexpected label input %+v", req.Label)
	}
	if req.Shots != 5 || !req.LiveFeed {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Label.Attributes["inner_diameter"] != "5/32" {
		t.Errorf("expected inner_diameter=5/32, got %v", req.Label.Attributes)
	}
	if _, ok := req.Label.Attributes["outer_diameter"]; ok {
		t.Error("empty attributes should be omitted")
	}
	if !strings.Contains(p.message, "port busy") {
		t.Errorf("expected start error in message, got %q", p.message)
	}
}

func TestCapturePageRejectsBadInput(t *testing.T) {
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), &fakeStarter{}, &cfg)

	p.cursor = rowShots
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p.input.SetValue("zero")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if p.shots != cfg.ShotCount {
		t.Errorf("shot count should be unchanged, got %d", p.shots)
	}

	p.cursor = fixedRows // screw length
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p.input.SetValue("long")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if p.attrs[label.Screw]["length"] != "" {
		t.Errorf("invalid dimension should be rejected, got %q", p.attrs[label.Screw]["length"])
	}
	if p.message == "" {
		t.Error("expected an error message")
	}
}

func TestCapturePageEchoesImperialDimension(t *testing.T) {
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), &fakeStarter{}, &cfg)
	p.cursor = rowSystem
	p.Update(tea.KeyMsg{Type: tea.KeyRight})

	p.cursor = fixedRows // screw length
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p.input.SetValue("0.15625")
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if p.attrs[label.Screw]["length"] != "0.15625" {
		t.Errorf("expected the typed value kept, got %q", p.attrs[label.Screw]["length"])
	}
	if p.message != "length = 5/32 in" {
		t.Errorf("expected snapped fraction echo, got %q", p.message)
	}
}

func TestCapturePageIgnoresOtherRuns(t *testing.T) {
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), &fakeStarter{}, &cfg)

	_, cmd := p.Update(runDoneMsg{Completion: capture.Completion{RunID: "other"}})
	if cmd != nil || p.result != nil {
		t.Error("completion for an unknown run should be ignored")
	}
}

func TestCapturePageStartsOffTheUpdateLoop(t *testing.T) {
	release := make(chan struct{})
	starter := &fakeStarter{err: errors.New("no port"), block: release}
	cfg := config.Defaults()
	p := NewCapturePage(context.Background(), starter, &cfg)

	_, cmd := p.Update(keyRunes("r"))
	if cmd == nil {
		t.Fatal("expected a start command")
	}
	if len(starter.calls) != 0 {
		t.Fatal("StartRun must not run inside Update")
	}

	// A second start while the link opens is refused.
	if _, again := p.Update(keyRunes("r")); again != nil {
		t.Error("expected no second start while one is pending")
	}

	msgCh := make(chan tea.Msg, 1)
	go func() { msgCh <- cmd() }()
	close(release)
	msg := <-msgCh
	p.Update(msg)

	if p.starting {
		t.Error("starting flag should clear after the start result")
	}
	if !strings.Contains(p.message, "no port") {
		t.Errorf("expected start error shown, got %q", p.message)
	}
}

func TestCapturePageShowsLivePreview(t *testing.T) {
	ctl, _ := newTestController(t, &fakeFixture{}, capture.WithPreviewer(transform.Shrink{Percent: 25}))
	cfg := config.Defaults()
	cfg.ShotCount = 2
	p := NewCapturePage(context.Background(), ctl, &cfg)
	p.cursor = rowLive
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !p.live {
		t.Fatal("expected live feed on")
	}

	pressStart(t, p)
	drive(t, p)

	if p.preview == "" {
		t.Fatal("expected a preview of the first shot")
	}
	if !strings.Contains(p.View(), "▀") {
		t.Error("view should draw the preview")
	}
}
