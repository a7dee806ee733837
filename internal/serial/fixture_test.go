package serial

import (
	"testing"
)

func readLine(t *testing.T, l *Link) string {
	t.Helper()
	for i := 0; i < 100; i++ {
		line, ok, err := l.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if ok {
			return line
		}
	}
	t.Fatal("no line from fixture")
	return ""
}

func TestFixtureHandshake(t *testing.T) {
	fx := NewFixture(2, 0)
	l := NewLink(fx, "sim")

	if line, ok, _ := l.ReadLine(); ok {
		t.Fatalf("fixture spoke before start: %q", line)
	}

	l.WriteLine("start")
	if got := readLine(t, l); got != "picture" {
		t.Fatalf("expected picture, got %q", got)
	}
	l.WriteLine("finished")
	if got := readLine(t, l); got != "picture" {
		t.Fatalf("expected second picture, got %q", got)
	}
	l.WriteLine("finished")
	if got := readLine(t, l); got != "finished-imaging" {
		t.Fatalf("expected finished-imaging, got %q", got)
	}
	if fx.Acks() != 2 {
		t.Errorf("expected 2 acks, got %d", fx.Acks())
	}
}

func TestFixtureClosed(t *testing.T) {
	fx := NewFixture(1, 0)
	l := NewLink(fx, "sim")
	l.Close()

	if _, _, err := l.ReadLine(); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := fx.Write([]byte("start\n")); err == nil {
		t.Error("write after close should fail")
	}
}
