package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/label"
)

func TestLogPath(t *testing.T) {
	dir := t.TempDir()

	got, err := logPath(dir, "")
	if err != nil {
		t.Fatalf("logPath: %v", err)
	}
	if want := filepath.Join(dir, config.DirName, config.DefaultLogFile); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	if got, _ := logPath(dir, "stdout"); got != "stdout" {
		t.Errorf("stdout should pass through, got %s", got)
	}

	abs := filepath.Join(dir, "elsewhere.log")
	if got, _ := logPath(dir, abs); got != abs {
		t.Errorf("absolute path should pass through, got %s", got)
	}
}

func TestPrintSink(t *testing.T) {
	var buf bytes.Buffer
	s := printSink{out: &buf, log: capture.LogSink{Log: zap.NewNop()}}

	s.OnFrame(capture.Shot{Index: 0, Phase: "top_down", Path: "/tmp/r/0_r.png", Preview: image.NewGray(image.Rect(0, 0, 3, 2))})
	s.OnError(&capture.Error{Kind: capture.AcquisitionTimeout, Shot: 1, Err: errors.New("timed out")})
	s.OnError(&capture.Error{Kind: capture.LinkIO, Shot: -1, Err: errors.New("gone")})
	s.OnComplete(capture.Completion{RunID: "r", Requested: 2, Shots: 1, Reason: capture.ReasonError, Dir: "/tmp/r"})

	out := buf.String()
	if !strings.Contains(out, "shot 0") || !strings.Contains(out, "/tmp/r/0_r.png") {
		t.Errorf("missing shot line: %q", out)
	}
	if !strings.Contains(out, "preview 3x2") {
		t.Errorf("missing live preview: %q", out)
	}
	if strings.Count(out, "warning:") != 1 {
		t.Errorf("only non-fatal faults are printed as warnings: %q", out)
	}
	if !strings.Contains(out, "1/2 shots") {
		t.Errorf("missing completion line: %q", out)
	}
}

func TestSimulatedDialer(t *testing.T) {
	o := &options{simulate: true, cfg: config.Defaults()}
	l, err := o.dialer()(context.Background())
	if err != nil {
		t.Fatalf("simulated dial: %v", err)
	}
	defer l.Close()
	if err := l.WriteLine("start"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}

	o.simulate = false
	if _, err := o.dialer()(context.Background()); err == nil {
		t.Error("expected error without a port outside simulation")
	}
}

func TestCaptureFlagsDefaults(t *testing.T) {
	o := &options{}
	cmd := newCaptureCommand(o)
	if got, _ := cmd.Flags().GetString("type"); got != string(label.Screw) {
		t.Errorf("expected default type screw, got %s", got)
	}
	if err := cmd.Flags().Parse([]string{"--attr", "length=12", "--attr", "thread_pitch=1.25"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	attrs, _ := cmd.Flags().GetStringToString("attr")
	if attrs["length"] != "12" || attrs["thread_pitch"] != "1.25" {
		t.Errorf("unexpected attrs: %v", attrs)
	}
}
