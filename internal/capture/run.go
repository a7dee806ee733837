package capture

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/store"
	"github.com/buckleypaul/fastcap/internal/transform"
)

// Lines exchanged with the fixture.
const (
	cmdStart        = "start"
	cmdFinished     = "finished"
	tokPicture      = "picture"
	tokFinishedImag = "finished-imaging"
)

// run is the worker state for one RunHandle. Only the worker goroutine
// touches it.
type run struct {
	c    *Controller
	s    Settings
	h    *RunHandle
	link Link
	req  Request
	ext  string
	log  *zap.Logger

	// devCtx is never cancelled: a capture in progress always completes.
	devCtx  context.Context
	limiter *rate.Limiter

	count   int
	active  camera.Applied
	applied map[camera.Phase]camera.Applied
	format  camera.PixelFormat

	// effective is what the camera is known to run with; features a phase
	// could not apply keep the previous phase's values.
	effective camera.Configuration
}

func (c *Controller) newRun(parent context.Context, s Settings, h *RunHandle, link Link, req Request) *run {
	ctx, cancel := context.WithCancel(parent)
	h.ctx, h.cancel = ctx, cancel
	ext, _ := transform.Ext(s.ImageFormat)
	return &run{
		c:       c,
		s:       s,
		h:       h,
		link:    link,
		req:     req,
		ext:     ext,
		log:     c.log.With(zap.String("run_id", h.id)),
		devCtx:  context.WithoutCancel(ctx),
		limiter: rate.NewLimiter(rate.Every(s.PollInterval), 1),
		applied: make(map[camera.Phase]camera.Applied),

		effective: camera.DeviceDefaults,
	}
}

func (r *run) run() {
	start := r.c.now()
	r.log.Info("run started",
		zap.String("dir", r.h.dir),
		zap.Int("shots", r.req.Shots),
		zap.Bool("live_feed", r.req.LiveFeed))

	comp := r.execute()
	r.h.cancel()
	r.h.setState(Finished)

	if err := r.link.Close(); err != nil {
		r.log.Warn("closing link", zap.Error(err))
	}

	comp.RunID = r.h.id
	comp.Dir = r.h.dir
	comp.Requested = r.req.Shots
	comp.Shots = r.count
	comp.Format = r.format
	comp.Camera = r.applied
	comp.Duration = r.c.now().Sub(start)

	rec := store.RunRecord{
		ID:        comp.RunID,
		Dir:       comp.Dir,
		Timestamp: start,
		Duration:  comp.Duration.Round(time.Millisecond).String(),
		Requested: comp.Requested,
		Shots:     comp.Shots,
		Outcome:   string(comp.Reason),
		Camera:    comp.Camera,
	}
	if comp.Err != nil {
		rec.Error = comp.Err.Error()
	}
	if err := r.c.dir.RecordRun(rec); err != nil {
		r.log.Warn("recording run history", zap.Error(err))
	}

	if comp.Err != nil {
		r.log.Error("run failed", zap.Int("shots", comp.Shots), zap.Error(comp.Err))
	} else {
		r.log.Info("run complete",
			zap.String("reason", string(comp.Reason)),
			zap.Int("shots", comp.Shots),
			zap.Duration("duration", comp.Duration))
	}

	r.c.release()
	r.h.complete(comp)
}

// execute runs the handshake loop and returns the completion without the
// bookkeeping fields.
func (r *run) execute() Completion {
	format, err := camera.Negotiate(r.c.dev)
	if err != nil {
		return r.fail(newError(FormatNegotiation, -1, err))
	}
	r.format = format
	r.log.Debug("pixel format negotiated", zap.String("format", string(format)))

	r.apply(r.s.TopDown)

	r.h.setState(AwaitingStart)
	if err := r.link.WriteLine(cmdStart); err != nil {
		return r.fail(newError(LinkIO, -1, err))
	}

	for {
		r.h.setState(AwaitingPicture)
		if r.count >= r.req.Shots {
			return Completion{Reason: ReasonLimit}
		}
		if r.h.ctx.Err() != nil {
			return r.cancelled()
		}
		if !r.buffered() {
			if err := r.limiter.Wait(r.h.ctx); err != nil {
				return r.cancelled()
			}
		}

		line, ok, err := r.link.ReadLine()
		if err != nil {
			return r.fail(newError(LinkIO, r.count, err))
		}
		if !ok {
			continue
		}

		switch tok := strings.TrimSpace(line); tok {
		case tokPicture:
			r.h.setState(Capturing)
			if e := r.capture(); e != nil {
				return r.fail(e)
			}
		case tokFinishedImag:
			r.log.Info("fixture finished imaging", zap.Int("shots", r.count))
			return Completion{Reason: ReasonFinishedImaging}
		case "":
		default:
			r.log.Warn("unexpected line from fixture", zap.String("token", tok))
			r.fault(newError(ProtocolDesync, r.count, errors.Errorf("unexpected token %q", tok)))
		}
	}
}

// capture handles one trigger. A timeout skips the shot without an
// acknowledgement; any other failure is returned and ends the run.
func (r *run) capture() *Error {
	n := r.count
	timeout := camera.AcquireTimeout(r.effective.Exposure,
		r.s.AcquireFloor, r.s.AcquireMargin)

	frame, err := r.c.dev.Acquire(r.devCtx, timeout)
	if errors.Is(err, camera.ErrTimeout) {
		r.log.Warn("acquisition timed out, waiting for next trigger",
			zap.Int("shot", n), zap.Duration("timeout", timeout))
		r.fault(newError(AcquisitionTimeout, n, err))
		return nil
	}
	if err != nil {
		return newError(Device, n, err)
	}

	img, err := transform.Apply(frame)
	if err != nil {
		return newError(Persist, n, err)
	}
	if err := r.persist(n, img); err != nil {
		return newError(Persist, n, err)
	}

	shot := Shot{
		Index:     n,
		Path:      store.ShotPath(r.h.dir, n, r.h.id, r.ext),
		Phase:     r.active.Requested.Phase,
		Timestamp: frame.Timestamp,
		Image:     img,
	}
	if n == 0 && r.req.LiveFeed && r.c.preview != nil {
		p, err := r.c.preview.Preview(r.devCtx, img)
		if err != nil {
			r.log.Warn("live preview failed", zap.Error(err))
		}
		shot.Preview = p
	}
	r.h.emit(shot)
	r.count++
	r.h.count.Store(int32(r.count))
	r.log.Debug("shot persisted", zap.Int("shot", n), zap.String("path", shot.Path))

	if err := r.link.WriteLine(cmdFinished); err != nil {
		return newError(LinkIO, n, err)
	}

	if r.count == 1 {
		r.apply(r.s.SideView)
	}
	return nil
}

func (r *run) persist(n int, img image.Image) error {
	w, err := r.c.dir.CreateShot(r.h.dir, n, r.h.id, r.ext)
	if err != nil {
		return err
	}
	if err := transform.Encode(w, img, r.ext); err != nil {
		w.Close()
		return errors.Wrapf(err, "encode shot %d", n)
	}
	return w.Close()
}

// apply switches the camera to cfg and waits for the device to confirm.
// Features the device could not apply are reported as faults and recorded;
// the run continues.
func (r *run) apply(cfg camera.Configuration) {
	a, err := camera.Apply(r.c.dev, cfg, r.log)
	r.active = a
	r.applied[cfg.Phase] = a
	r.effective = a.Effective(r.effective)
	if err != nil {
		r.log.Warn("applying camera configuration", zap.String("phase", string(cfg.Phase)), zap.Error(err))
		r.fault(newError(FeatureFailed, -1, err))
		return
	}
	r.featureFault(cfg.Phase, "exposure", cfg.Exposure, a.Exposure)
	r.featureFault(cfg.Phase, "white balance", cfg.WhiteBalance, a.WhiteBalance)
	r.log.Info("camera configured",
		zap.String("phase", string(cfg.Phase)),
		zap.Stringer("exposure", r.effective.Exposure),
		zap.Stringer("white_balance", r.effective.WhiteBalance))
}

func (r *run) featureFault(p camera.Phase, feature string, requested fmt.Stringer, st camera.FeatureStatus) {
	switch st {
	case camera.FeatureUnsupported:
		r.fault(newError(UnsupportedFeature, -1,
			errors.Errorf("%s: %s %s not supported, previous setting stays", p, feature, requested)))
	case camera.FeatureFailed:
		r.fault(newError(FeatureFailed, -1,
			errors.Errorf("%s: %s %s rejected, previous setting stays", p, feature, requested)))
	}
}

func (r *run) fault(e *Error) {
	if !r.h.fault(e) {
		r.log.Debug("fault dropped, channel full", zap.Stringer("kind", e.Kind))
	}
}

// buffered reports whether the link already holds unread input, in which
// case the next read does not need to wait for the poll interval.
func (r *run) buffered() bool {
	b, ok := r.link.(bufferedLink)
	return ok && b.Buffered()
}

func (r *run) fail(e *Error) Completion {
	return Completion{Reason: ReasonError, Err: e}
}

func (r *run) cancelled() Completion {
	r.log.Info("run cancelled", zap.Int("shots", r.count))
	return Completion{Reason: ReasonCancelled, Cancelled: true}
}
