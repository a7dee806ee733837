package serial

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// Fixture emulates the station firmware on an in-memory stream. It answers
// "start" and each "finished" with "picture", and sends "finished-imaging"
// once Positions acknowledgements have arrived. Reads return after Delay
// with no data when nothing is pending, like a port with a read timeout.
type Fixture struct {
	Positions int
	Delay     time.Duration

	mu     sync.Mutex
	out    bytes.Buffer
	in     []byte
	acks   int
	closed bool
}

// NewFixture returns a fixture that images positions shots.
func NewFixture(positions int, delay time.Duration) *Fixture {
	return &Fixture{Positions: positions, Delay: delay}
}

func (f *Fixture) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.EOF
	}
	if f.out.Len() == 0 {
		f.mu.Unlock()
		time.Sleep(f.Delay)
		return 0, nil
	}
	defer f.mu.Unlock()
	return f.out.Read(p)
}

func (f *Fixture) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	f.in = append(f.in, p...)
	for {
		idx := bytes.IndexByte(f.in, '\n')
		if idx < 0 {
			break
		}
		f.handle(strings.TrimSpace(string(f.in[:idx])))
		f.in = f.in[idx+1:]
	}
	return len(p), nil
}

func (f *Fixture) handle(cmd string) {
	switch cmd {
	case "start":
		f.acks = 0
		f.out.WriteString("picture\r\n")
	case "finished":
		f.acks++
		if f.Positions > 0 && f.acks >= f.Positions {
			f.out.WriteString("finished-imaging\r\n")
			return
		}
		f.out.WriteString("picture\r\n")
	}
}

// Acks returns the number of acknowledgements received since "start".
func (f *Fixture) Acks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

func (f *Fixture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
