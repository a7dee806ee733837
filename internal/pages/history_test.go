package pages

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/store"
)

func TestHistoryPageShowsRuns(t *testing.T) {
	sess, _ := store.New(t.TempDir())
	sess.RecordRun(store.RunRecord{
		ID: "0123456789abcdef", Shots: 9, Requested: 9, Outcome: "limit", Duration: "12s",
		Camera: map[camera.Phase]camera.Applied{
			camera.SideView: {Exposure: camera.FeatureApplied, WhiteBalance: camera.FeatureUnsupported},
		},
	})
	p := NewHistoryPage(sess)

	msg := p.Init()()
	p.Update(msg)

	view := p.View()
	if !strings.Contains(view, "01234567") {
		t.Errorf("expected short run id in view:\n%s", view)
	}
	if !strings.Contains(view, "9/9 shots") {
		t.Errorf("expected shot count in view:\n%s", view)
	}
	if !strings.Contains(view, "side_view degraded") {
		t.Errorf("expected degraded phase to be flagged:\n%s", view)
	}
	if !strings.Contains(view, "white balance unsupported") {
		t.Errorf("expected degraded camera note in view:\n%s", view)
	}
}

func TestHistoryPageAddsNote(t *testing.T) {
	sess, _ := store.New(t.TempDir())
	p := NewHistoryPage(sess)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	p.Update(keyRunes("n"))
	if !p.InputCaptured() {
		t.Fatal("expected note input to capture keys")
	}
	p.input.SetValue("lens cleaned")
	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected reload after adding a note")
	}
	p.Update(cmd())

	notes, _ := sess.Notes()
	if len(notes) != 1 || notes[0].Text != "lens cleaned" {
		t.Fatalf("unexpected notes %+v", notes)
	}
	if !strings.Contains(p.View(), "03:04:05  lens cleaned") {
		t.Errorf("expected note in view:\n%s", p.View())
	}
}

func TestHistoryPageReloadsAfterRun(t *testing.T) {
	sess, _ := store.New(t.TempDir())
	p := NewHistoryPage(sess)

	_, cmd := p.Update(runDoneMsg{})
	if cmd == nil {
		t.Fatal("expected history reload when a run completes")
	}
	if _, ok := cmd().(historyLoadedMsg); !ok {
		t.Error("expected historyLoadedMsg")
	}
}
