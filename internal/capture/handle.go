package capture

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buckleypaul/fastcap/internal/camera"
)

const faultBuffer = 32

// State is the handshake state of a run.
type State int32

const (
	AwaitingStart State = iota
	AwaitingPicture
	Capturing
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting start"
	case AwaitingPicture:
		return "awaiting picture"
	case Capturing:
		return "capturing"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Shot is one persisted frame.
type Shot struct {
	Index     int
	Path      string
	Phase     camera.Phase
	Timestamp time.Time
	Image     image.Image
	// Preview is the live-feed overlay, set only for shot 0 of a live run.
	Preview image.Image
}

// Reason says why a run ended.
type Reason string

const (
	ReasonLimit           Reason = "limit"
	ReasonFinishedImaging Reason = "finished-imaging"
	ReasonCancelled       Reason = "cancelled"
	ReasonError           Reason = "error"
)

// Completion is the final report of a run.
type Completion struct {
	RunID     string
	Dir       string
	Requested int
	Shots     int
	Reason    Reason
	Cancelled bool
	Err       *Error
	Format    camera.PixelFormat
	Camera    map[camera.Phase]camera.Applied
	Duration  time.Duration
}

// OK reports whether the run ended without a fatal error or cancellation.
func (c Completion) OK() bool {
	return c.Err == nil && !c.Cancelled
}

// RunHandle observes and controls one run.
type RunHandle struct {
	id    string
	dir   string
	shots int

	frames chan Shot
	faults chan *Error
	done   chan Completion

	ctx    context.Context
	cancel context.CancelFunc

	state    atomic.Int32
	count    atomic.Int32
	once     sync.Once
	result   Completion
	finished chan struct{}
}

func newHandle(id, dir string, shots int) *RunHandle {
	return &RunHandle{
		id:       id,
		dir:      dir,
		shots:    shots,
		frames:   make(chan Shot, shots),
		faults:   make(chan *Error, faultBuffer),
		done:     make(chan Completion, 1),
		finished: make(chan struct{}),
	}
}

// ID returns the run identifier.
func (h *RunHandle) ID() string { return h.id }

// Dir returns the run directory.
func (h *RunHandle) Dir() string { return h.dir }

// Requested returns the target shot count.
func (h *RunHandle) Requested() int { return h.shots }

// Shots returns the number of shots persisted so far.
func (h *RunHandle) Shots() int { return int(h.count.Load()) }

// State returns the current handshake state.
func (h *RunHandle) State() State { return State(h.state.Load()) }

// Frames delivers every persisted shot in order. It is closed before the
// completion is sent.
func (h *RunHandle) Frames() <-chan Shot { return h.frames }

// Faults delivers non-fatal errors. Faults are dropped when nobody reads.
// It is closed before the completion is sent.
func (h *RunHandle) Faults() <-chan *Error { return h.faults }

// Done delivers exactly one Completion.
func (h *RunHandle) Done() <-chan Completion { return h.done }

// Cancel asks the run to stop at the next trigger boundary. A capture in
// progress is finished and acknowledged first.
func (h *RunHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Wait blocks until the run completes and returns its Completion.
func (h *RunHandle) Wait() Completion {
	<-h.finished
	return h.result
}

func (h *RunHandle) setState(s State) {
	h.state.Store(int32(s))
}

func (h *RunHandle) emit(s Shot) {
	h.frames <- s
}

func (h *RunHandle) fault(e *Error) bool {
	select {
	case h.faults <- e:
		return true
	default:
		return false
	}
}

func (h *RunHandle) complete(c Completion) {
	h.once.Do(func() {
		h.result = c
		close(h.frames)
		close(h.faults)
		h.done <- c
		close(h.finished)
	})
}
