package capture

import (
	"go.uber.org/zap"
)

// Sink consumes run progress.
type Sink interface {
	OnFrame(Shot)
	OnError(*Error)
	OnComplete(Completion)
}

// Forward drains h into sink: every shot and fault in order of arrival,
// then the terminal error if any, then the completion. It blocks until the
// run completes and returns its Completion.
func Forward(h *RunHandle, sink Sink) Completion {
	frames, faults := h.Frames(), h.Faults()
	for frames != nil || faults != nil {
		select {
		case s, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			sink.OnFrame(s)
		case e, ok := <-faults:
			if !ok {
				faults = nil
				continue
			}
			sink.OnError(e)
		}
	}
	c := <-h.Done()
	if c.Err != nil {
		sink.OnError(c.Err)
	}
	sink.OnComplete(c)
	return c
}

// LogSink reports progress to a logger.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) OnFrame(shot Shot) {
	s.Log.Info("shot", zap.Int("shot", shot.Index), zap.String("path", shot.Path), zap.String("phase", string(shot.Phase)))
}

func (s LogSink) OnError(e *Error) {
	if e.Kind.Fatal() {
		s.Log.Error("capture error", zap.Stringer("kind", e.Kind), zap.Error(e))
		return
	}
	s.Log.Warn("capture fault", zap.Stringer("kind", e.Kind), zap.Error(e))
}

func (s LogSink) OnComplete(c Completion) {
	s.Log.Info("run finished",
		zap.String("run_id", c.RunID),
		zap.String("dir", c.Dir),
		zap.Int("shots", c.Shots),
		zap.String("reason", string(c.Reason)))
}
