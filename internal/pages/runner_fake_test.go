package pages

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/serial"
)

// fakeFixture answers "start" and every "finished" with "picture". A
// silent fixture never answers.
type fakeFixture struct {
	mu     sync.Mutex
	silent bool
	queue  []string
	acks   int
}

func (f *fakeFixture) ReadLine() (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return "", false, nil
	}
	line := f.queue[0]
	f.queue = f.queue[1:]
	return line, true, nil
}

func (f *fakeFixture) WriteLine(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == "finished" {
		f.acks++
	}
	if !f.silent {
		f.queue = append(f.queue, "picture")
	}
	return nil
}

func (f *fakeFixture) Close() error { return nil }

func (f *fakeFixture) dial(context.Context) (capture.Link, error) {
	return f, nil
}

type startCall struct {
	req capture.Request
}

// fakeStarter records requests and fails every start. A non-nil block
// holds each start until it is closed.
type fakeStarter struct {
	err   error
	block chan struct{}
	mu    sync.Mutex
	calls []startCall
}

func (f *fakeStarter) StartRun(_ context.Context, req capture.Request) (*capture.RunHandle, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, startCall{req: req})
	return nil, f.err
}

type fakeScanner struct {
	ports []serial.PortInfo
	err   error
	scans int
}

func (f *fakeScanner) scan() tea.Cmd {
	f.scans++
	return func() tea.Msg {
		return app.PortsLoadedMsg{Ports: f.ports, Err: f.err}
	}
}
