/*
Package camera describes the machine-vision camera used by the imaging
station at the level the capture controller needs it: pixel-format
negotiation, exposure and white balance, and single-frame acquisition.

Driver internals live behind the Device interface. Every setter returns only
after the device has confirmed the value, so callers never sleep to let a
setting "settle".
*/
package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned by Acquire when no frame arrived in time.
	ErrTimeout = errors.New("camera: frame acquisition timed out")

	// ErrNoCompatibleFormat means the device offers no pixel format the
	// transform pipeline can consume.
	ErrNoCompatibleFormat = errors.New("camera: no compatible pixel format")
)

// Phase names a camera configuration applied for a contiguous span of shots.
type Phase string

const (
	TopDown  Phase = "top_down"
	SideView Phase = "side_view"
)

// Exposure is either automatic or a fixed exposure time in microseconds.
type Exposure struct {
	Auto   bool `json:"auto"`
	Micros int  `json:"micros,omitempty"`
}

// Duration returns the exposure time; zero for auto exposure.
func (e Exposure) Duration() time.Duration {
	if e.Auto {
		return 0
	}
	return time.Duration(e.Micros) * time.Microsecond
}

func (e Exposure) String() string {
	if e.Auto {
		return "auto"
	}
	return fmt.Sprintf("%dus", e.Micros)
}

// WhiteBalance is either automatic or a manual red/blue ratio pair.
type WhiteBalance struct {
	Auto bool    `json:"auto"`
	Red  float64 `json:"red,omitempty"`
	Blue float64 `json:"blue,omitempty"`
}

func (wb WhiteBalance) String() string {
	if wb.Auto {
		return "auto"
	}
	return fmt.Sprintf("r=%.3f b=%.3f", wb.Red, wb.Blue)
}

// Configuration is the full set of settings for one phase.
type Configuration struct {
	Phase        Phase        `json:"phase"`
	Exposure     Exposure     `json:"exposure"`
	WhiteBalance WhiteBalance `json:"white_balance"`
}

// FeatureStatus is the outcome of setting one optional camera feature.
type FeatureStatus int

const (
	// FeatureNotAttempted means the setter was never reached, for example
	// after an earlier device error.
	FeatureNotAttempted FeatureStatus = iota
	// FeatureApplied means the device confirmed the requested value.
	FeatureApplied
	// FeatureUnsupported means the device has no such feature; its prior setting stays.
	FeatureUnsupported
	// FeatureFailed means the device has the feature but rejected the value,
	// or the setter itself failed.
	FeatureFailed
)

func (s FeatureStatus) String() string {
	switch s {
	case FeatureNotAttempted:
		return "not attempted"
	case FeatureApplied:
		return "applied"
	case FeatureUnsupported:
		return "unsupported"
	case FeatureFailed:
		return "failed"
	}
	return fmt.Sprintf("FeatureStatus(%d)", int(s))
}

// MarshalText lets FeatureStatus appear by name in JSON records.
func (s FeatureStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FeatureStatus) UnmarshalText(b []byte) error {
	for _, v := range []FeatureStatus{FeatureNotAttempted, FeatureApplied, FeatureUnsupported, FeatureFailed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("camera: unknown feature status %q", b)
}

// Device is the capability set the controller borrows for a run. It is not
// safe for concurrent use; the controller never issues two calls at once.
type Device interface {
	// PixelFormats lists the encodings the device can deliver.
	PixelFormats() ([]PixelFormat, error)

	// SetPixelFormat selects the delivered encoding.
	SetPixelFormat(PixelFormat) error

	// SetExposure applies an exposure setting and returns once confirmed.
	SetExposure(Exposure) (FeatureStatus, error)

	// SetWhiteBalance applies a white-balance setting and returns once confirmed.
	SetWhiteBalance(WhiteBalance) (FeatureStatus, error)

	// Acquire captures one frame, waiting at most timeout. It returns
	// ErrTimeout when the wait expires.
	Acquire(ctx context.Context, timeout time.Duration) (*Frame, error)

	// Close releases the device.
	Close() error
}

// Applied records what was requested for a phase next to what the device
// actually accepted.
type Applied struct {
	Requested    Configuration `json:"requested"`
	Exposure     FeatureStatus `json:"exposure"`
	WhiteBalance FeatureStatus `json:"white_balance"`
}

// DeviceDefaults is what a freshly opened camera is assumed to run with.
var DeviceDefaults = Configuration{
	Exposure:     Exposure{Auto: true},
	WhiteBalance: WhiteBalance{Auto: true},
}

// Effective returns the settings known to be in force. A feature that was
// not applied keeps whatever the device had before, given by prev.
func (a Applied) Effective(prev Configuration) Configuration {
	cfg := a.Requested
	if a.Exposure != FeatureApplied {
		cfg.Exposure = prev.Exposure
	}
	if a.WhiteBalance != FeatureApplied {
		cfg.WhiteBalance = prev.WhiteBalance
	}
	return cfg
}

// Degraded reports whether any requested feature was not applied.
func (a Applied) Degraded() bool {
	return a.Exposure != FeatureApplied || a.WhiteBalance != FeatureApplied
}

// Apply sets exposure then white balance. Unsupported or rejected features
// are logged and recorded in the result, never silently replaced; only a
// transport-level device error is returned. On that error the failing
// feature is recorded as failed and the ones after it as not attempted.
func Apply(dev Device, cfg Configuration, log *zap.Logger) (Applied, error) {
	if log == nil {
		log = zap.L()
	}
	res := Applied{Requested: cfg}

	st, err := dev.SetExposure(cfg.Exposure)
	if err != nil {
		res.Exposure = FeatureFailed
		return res, errors.Wrapf(err, "set exposure for %s", cfg.Phase)
	}
	res.Exposure = st
	if st != FeatureApplied {
		log.Warn("exposure not applied, keeping device setting",
			zap.String("phase", string(cfg.Phase)),
			zap.Stringer("requested", cfg.Exposure),
			zap.Stringer("status", st))
	}

	st, err = dev.SetWhiteBalance(cfg.WhiteBalance)
	if err != nil {
		res.WhiteBalance = FeatureFailed
		return res, errors.Wrapf(err, "set white balance for %s", cfg.Phase)
	}
	res.WhiteBalance = st
	if st != FeatureApplied {
		log.Warn("white balance not applied, keeping device setting",
			zap.String("phase", string(cfg.Phase)),
			zap.Stringer("requested", cfg.WhiteBalance),
			zap.Stringer("status", st))
	}
	return res, nil
}

// AcquireTimeout sizes the frame wait as max(exposure, floor) + margin.
// Auto exposure counts as the floor.
func AcquireTimeout(e Exposure, floor, margin time.Duration) time.Duration {
	d := e.Duration()
	if d < floor {
		d = floor
	}
	return d + margin
}
