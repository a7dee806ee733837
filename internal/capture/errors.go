package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBusy is returned by StartRun while another run is active.
var ErrBusy = errors.New("capture: a run is already active")

// Kind classifies a capture error.
type Kind int

const (
	// AcquisitionTimeout: no frame arrived in time. The shot is retried on
	// the next trigger.
	AcquisitionTimeout Kind = iota + 1
	// UnsupportedFeature: the camera lacks a requested feature. The run
	// continues with the device's fallback.
	UnsupportedFeature
	// FeatureFailed: the camera rejected a requested setting.
	FeatureFailed
	// FormatNegotiation: no usable pixel format. Fatal.
	FormatNegotiation
	// LinkOpen: the serial link could not be opened. Fatal, before the loop.
	LinkOpen
	// DirectoryAllocation: the run directory or label could not be
	// created. Fatal, before the loop.
	DirectoryAllocation
	// ProtocolDesync: an unexpected line from the fixture. Ignored.
	ProtocolDesync
	// LinkIO: serial I/O failed mid-run. Fatal.
	LinkIO
	// Device: the camera failed with something other than a timeout. Fatal.
	Device
	// Persist: the frame could not be transformed, encoded or written. Fatal.
	Persist
	// Busy: a run is already active.
	Busy
)

var kindNames = map[Kind]string{
	AcquisitionTimeout:  "acquisition timeout",
	UnsupportedFeature:  "unsupported camera feature",
	FeatureFailed:       "camera feature failed",
	FormatNegotiation:   "format negotiation",
	LinkOpen:            "link open",
	DirectoryAllocation: "directory allocation",
	ProtocolDesync:      "protocol desync",
	LinkIO:              "link i/o",
	Device:              "device",
	Persist:             "persist",
	Busy:                "busy",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether an error of this kind ends the run.
func (k Kind) Fatal() bool {
	switch k {
	case AcquisitionTimeout, UnsupportedFeature, FeatureFailed, ProtocolDesync:
		return false
	}
	return true
}

// Error is a classified capture failure. Shot is the shot index the error
// belongs to, or -1.
type Error struct {
	Kind Kind
	Shot int
	Err  error
}

func (e *Error) Error() string {
	if e.Shot >= 0 {
		return fmt.Sprintf("capture: %s (shot %d): %v", e.Kind, e.Shot, e.Err)
	}
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, shot int, err error) *Error {
	return &Error{Kind: k, Shot: shot, Err: err}
}
