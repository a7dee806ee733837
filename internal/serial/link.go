package serial

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// ErrClosed is returned by a Link after Close.
var ErrClosed = errors.New("serial: link closed")

// Settings describes how to open the fixture's serial port.
type Settings struct {
	Port         string
	BaudRate     int
	PollInterval time.Duration // upper bound on a single ReadLine
	OpenTimeout  time.Duration // total retry budget for Open
}

// drainer is implemented by ports that can block until written data is sent.
type drainer interface {
	Drain() error
}

// Link is a line-oriented connection to the fixture. It has one reader and
// one writer: the capture worker that owns it.
type Link struct {
	port    io.ReadWriteCloser
	name    string
	buf     []byte
	pending []byte

	mu     sync.Mutex
	closed bool
}

// Open opens the port 8N1 with a read timeout of PollInterval. The open is
// retried with exponential backoff until OpenTimeout elapses; USB adapters
// often need a moment after enumeration before they accept an open.
func Open(ctx context.Context, s Settings) (*Link, error) {
	if s.PollInterval <= 0 {
		s.PollInterval = 50 * time.Millisecond
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 3 * time.Second
	}
	mode := &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port serial.Port
	op := func() error {
		p, err := serial.Open(s.Port, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      s.OpenTimeout,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, errors.Wrapf(err, "open %s", s.Port)
	}

	if err := port.SetReadTimeout(s.PollInterval); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", s.Port)
	}
	return NewLink(port, s.Port), nil
}

// NewLink wraps an already-open stream. Reads on rw are expected to return
// after a bounded wait, with n == 0 when nothing arrived.
func NewLink(rw io.ReadWriteCloser, name string) *Link {
	return &Link{
		port: rw,
		name: name,
		buf:  make([]byte, 256),
	}
}

// Name returns the port name the link was opened on.
func (l *Link) Name() string { return l.name }

// ReadLine performs one bounded poll. It returns ok=false when no complete
// line is available yet; partial input is kept for the next call. The line
// terminator and any trailing carriage return are stripped.
func (l *Link) ReadLine() (string, bool, error) {
	if l.isClosed() {
		return "", false, ErrClosed
	}
	if line, ok := l.takeLine(); ok {
		return line, true, nil
	}

	n, err := l.port.Read(l.buf)
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
	}
	if err != nil {
		if l.isClosed() {
			return "", false, ErrClosed
		}
		return "", false, errors.Wrapf(err, "read %s", l.name)
	}

	line, ok := l.takeLine()
	return line, ok, nil
}

// Buffered reports whether received bytes are waiting to be consumed.
func (l *Link) Buffered() bool {
	return len(l.pending) > 0
}

// WriteLine sends s followed by a newline in a single write and waits for
// the port to transmit it.
func (l *Link) WriteLine(s string) error {
	if l.isClosed() {
		return ErrClosed
	}
	if _, err := l.port.Write([]byte(s + "\n")); err != nil {
		return errors.Wrapf(err, "write %s", l.name)
	}
	if d, ok := l.port.(drainer); ok {
		if err := d.Drain(); err != nil {
			return errors.Wrapf(err, "drain %s", l.name)
		}
	}
	return nil
}

// Close closes the port. Calling it more than once is safe.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) takeLine() (string, bool) {
	idx := bytes.IndexByte(l.pending, '\n')
	if idx < 0 {
		return "", false
	}
	line := bytes.TrimSuffix(l.pending[:idx], []byte{'\r'})
	out := string(line)
	l.pending = append(l.pending[:0], l.pending[idx+1:]...)
	return out, true
}
