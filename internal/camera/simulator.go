package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Simulator is an in-process Device that renders synthetic frames. It stands
// in for the station camera with --simulate and in tests.
type Simulator struct {
	Width, Height int
	Formats       []PixelFormat

	// NoExposure and NoWhiteBalance make the matching setter report
	// FeatureUnsupported, as on cameras without those features.
	NoExposure     bool
	NoWhiteBalance bool

	// ExposureErr makes SetExposure fail outright, like a lost USB transfer.
	ExposureErr error

	// TimeoutNext makes the next n Acquire calls time out.
	// AlwaysTimeout makes every call time out.
	TimeoutNext   int
	AlwaysTimeout bool

	// Latency is how long a successful acquisition takes.
	Latency time.Duration

	mu       sync.Mutex
	format   PixelFormat
	exposure Exposure
	wb       WhiteBalance
	frames   int
	calls    []string
	closed   bool
}

// NewSimulator returns a small color-capable simulated camera.
func NewSimulator() *Simulator {
	return &Simulator{
		Width:   64,
		Height:  48,
		Formats: []PixelFormat{BayerRG8, Mono8, BGR8},
	}
}

func (s *Simulator) PixelFormats() ([]PixelFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("formats")
	return append([]PixelFormat(nil), s.Formats...), nil
}

func (s *Simulator) SetPixelFormat(f PixelFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.Formats {
		if have == f {
			s.format = f
			s.record("format:" + string(f))
			return nil
		}
	}
	return fmt.Errorf("simulator: pixel format %s not offered", f)
}

func (s *Simulator) SetExposure(e Exposure) (FeatureStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("exposure:" + e.String())
	if s.ExposureErr != nil {
		return FeatureFailed, s.ExposureErr
	}
	if s.NoExposure {
		return FeatureUnsupported, nil
	}
	if !e.Auto && e.Micros <= 0 {
		return FeatureFailed, nil
	}
	s.exposure = e
	return FeatureApplied, nil
}

func (s *Simulator) SetWhiteBalance(wb WhiteBalance) (FeatureStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("white_balance:" + wb.String())
	if s.NoWhiteBalance {
		return FeatureUnsupported, nil
	}
	if !wb.Auto && (wb.Red <= 0 || wb.Blue <= 0) {
		return FeatureFailed, nil
	}
	s.wb = wb
	return FeatureApplied, nil
}

// Acquire renders a gradient frame in the selected format. The top-left
// pixel is brightest so a reorientation is visible.
func (s *Simulator) Acquire(ctx context.Context, timeout time.Duration) (*Frame, error) {
	s.mu.Lock()
	s.record("acquire")
	if s.AlwaysTimeout || s.TimeoutNext > 0 {
		if s.TimeoutNext > 0 {
			s.TimeoutNext--
		}
		s.mu.Unlock()
		return nil, ErrTimeout
	}
	latency := s.Latency
	s.mu.Unlock()

	if latency > 0 {
		if latency > timeout {
			return nil, ErrTimeout
		}
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == "" {
		return nil, fmt.Errorf("simulator: no pixel format selected")
	}
	s.frames++
	return s.render(), nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns the recorded device calls in order.
func (s *Simulator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Current returns the exposure and white balance in force.
func (s *Simulator) Current() (Exposure, WhiteBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure, s.wb
}

func (s *Simulator) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *Simulator) render() *Frame {
	bpp := s.format.BytesPerPixel()
	stride := s.Width * bpp
	pix := make([]byte, stride*s.Height)
	span := s.Width + s.Height
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			v := 255 - (x+y)*255/span
			off := y*stride + x*bpp
			switch s.format {
			case Mono8:
				pix[off] = byte(v)
			case Mono16:
				pix[off] = byte(v)
				pix[off+1] = byte(v)
			case RGB8:
				pix[off], pix[off+1], pix[off+2] = byte(v), byte(s.frames), 0
			case BGR8:
				pix[off], pix[off+1], pix[off+2] = 0, byte(s.frames), byte(v)
			}
		}
	}
	return &Frame{
		Format:    s.format,
		Width:     s.Width,
		Height:    s.Height,
		Stride:    stride,
		Pix:       pix,
		Timestamp: time.Now(),
	}
}
