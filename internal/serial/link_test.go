package serial

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

// fakePort hands out one chunk per Read and returns 0, nil when empty,
// the way a port with a read timeout behaves.
type fakePort struct {
	chunks  []string
	written bytes.Buffer
	drains  int
	closed  bool
	readErr error
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakePort) Drain() error                { f.drains++; return nil }
func (f *fakePort) Close() error                { f.closed = true; return nil }

func TestReadLineStripsTerminators(t *testing.T) {
	port := &fakePort{chunks: []string{"picture\r\n"}}
	l := NewLink(port, "fake")

	line, ok, err := l.ReadLine()
	if err != nil || !ok {
		t.Fatalf("expected a line, got ok=%v err=%v", ok, err)
	}
	if line != "picture" {
		t.Fatalf("expected picture, got %q", line)
	}
}

func TestReadLineAssemblesPartialInput(t *testing.T) {
	port := &fakePort{chunks: []string{"fini", "shed-ima", "ging\r\npic", "ture\r\n"}}
	l := NewLink(port, "fake")

	var lines []string
	for i := 0; i < 8; i++ {
		line, ok, err := l.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if ok {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 || lines[0] != "finished-imaging" || lines[1] != "picture" {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestReadLineNoData(t *testing.T) {
	l := NewLink(&fakePort{}, "fake")

	_, ok, err := l.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no line from an idle port")
	}
	if l.Buffered() {
		t.Fatal("expected nothing buffered")
	}
}

func TestBufferedReportsPartialLine(t *testing.T) {
	l := NewLink(&fakePort{chunks: []string{"pict"}}, "fake")
	l.ReadLine()
	if !l.Buffered() {
		t.Fatal("expected partial input to be buffered")
	}
}

func TestWriteLineAppendsNewlineAndDrains(t *testing.T) {
	port := &fakePort{}
	l := NewLink(port, "fake")

	if err := l.WriteLine("finished"); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}
	if port.written.String() != "finished\n" {
		t.Fatalf("expected finished\\n, got %q", port.written.String())
	}
	if port.drains != 1 {
		t.Fatalf("expected one drain, got %d", port.drains)
	}
}

func TestClosedLink(t *testing.T) {
	port := &fakePort{}
	l := NewLink(port, "fake")

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if !port.closed {
		t.Fatal("expected port to be closed")
	}
	if _, _, err := l.ReadLine(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from ReadLine, got %v", err)
	}
	if err := l.WriteLine("start"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from WriteLine, got %v", err)
	}
}

func TestReadErrorIsWrapped(t *testing.T) {
	l := NewLink(&fakePort{readErr: io.ErrUnexpectedEOF}, "ttyACM0")

	_, _, err := l.ReadLine()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped ErrUnexpectedEOF, got %v", err)
	}
}
