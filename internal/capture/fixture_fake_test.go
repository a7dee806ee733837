package capture

import (
	"context"
	"image"
	"sync"

	"github.com/buckleypaul/fastcap/internal/camera"
)

// eventLog records link and device activity in one ordered list.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(e string) int {
	n := 0
	for _, got := range l.list() {
		if got == e {
			n++
		}
	}
	return n
}

// fakeFixture plays the fixture side of the handshake. After "start" and
// after every "finished" it queues the next "picture", until finishAfter
// acknowledgements have been received, when it sends "finished-imaging".
type fakeFixture struct {
	mu sync.Mutex
	ev *eventLog

	// noise is delivered before the first picture.
	noise []string
	// finishAfter sends finished-imaging after this many acks; 0 never.
	finishAfter int
	// retrigger resends "picture" after this many empty polls while an
	// acknowledgement is outstanding; 0 never.
	retrigger int
	// silent never sends anything.
	silent bool
	// failRead makes ReadLine fail.
	failRead error

	queue    []string
	awaiting bool
	idle     int
	acks     int
	closed   bool
}

func (f *fakeFixture) ReadLine() (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead != nil {
		return "", false, f.failRead
	}
	if len(f.queue) > 0 {
		line := f.queue[0]
		f.queue = f.queue[1:]
		if line == "picture\r" {
			f.awaiting = true
			f.idle = 0
		}
		return line, true, nil
	}
	if f.awaiting && f.retrigger > 0 {
		f.idle++
		if f.idle >= f.retrigger {
			f.idle = 0
			return "picture\r", true, nil
		}
	}
	return "", false, nil
}

func (f *fakeFixture) WriteLine(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ev.add("tx:" + s)
	if f.silent {
		return nil
	}
	switch s {
	case "start":
		f.queue = append(f.queue, f.noise...)
		f.queue = append(f.queue, "picture\r")
	case "finished":
		f.awaiting = false
		f.acks++
		if f.finishAfter > 0 && f.acks >= f.finishAfter {
			f.queue = append(f.queue, "finished-imaging\r")
		} else {
			f.queue = append(f.queue, "picture\r")
		}
	}
	return nil
}

func (f *fakeFixture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.ev.add("close")
	return nil
}

func (f *fakeFixture) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeFixture) dialer() Dialer {
	return func(context.Context) (Link, error) {
		return f, nil
	}
}

// recordingCamera logs configuration changes into the shared event log.
type recordingCamera struct {
	*camera.Simulator
	ev *eventLog
}

func (c recordingCamera) SetExposure(e camera.Exposure) (camera.FeatureStatus, error) {
	c.ev.add("exposure:" + e.String())
	return c.Simulator.SetExposure(e)
}

type fakePreviewer struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePreviewer) Preview(_ context.Context, img image.Image) (image.Image, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return img, nil
}

type recordingSink struct {
	shots     []int
	faults    []Kind
	completed []Completion
}

func (s *recordingSink) OnFrame(shot Shot) { s.shots = append(s.shots, shot.Index) }
func (s *recordingSink) OnError(e *Error) { s.faults = append(s.faults, e.Kind) }
func (s *recordingSink) OnComplete(c Completion) { s.completed = append(s.completed, c) }
