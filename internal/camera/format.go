package camera

import (
	"time"

	"github.com/pkg/errors"
)

// PixelFormat is a camera pixel encoding.
type PixelFormat string

const (
	Mono8    PixelFormat = "Mono8"
	Mono16   PixelFormat = "Mono16"
	RGB8     PixelFormat = "RGB8"
	BGR8     PixelFormat = "BGR8"
	BayerRG8 PixelFormat = "BayerRG8"
	YUV422   PixelFormat = "YUV422Packed"
)

// ColorFormats and MonoFormats are the encodings the transform pipeline
// reads directly, in order of preference.
var (
	ColorFormats = []PixelFormat{BGR8, RGB8}
	MonoFormats  = []PixelFormat{Mono8, Mono16}
)

// BytesPerPixel returns the packed size of one pixel, or 0 for encodings
// that are not consumable.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Mono8:
		return 1
	case Mono16:
		return 2
	case RGB8, BGR8:
		return 3
	}
	return 0
}

// Frame is one raw acquisition.
type Frame struct {
	Format    PixelFormat
	Width     int
	Height    int
	Stride    int // bytes per row
	Pix       []byte
	Timestamp time.Time
}

// Negotiate picks the first color format the device supports, falling back
// to mono, and selects it on the device.
func Negotiate(dev Device) (PixelFormat, error) {
	offered, err := dev.PixelFormats()
	if err != nil {
		return "", errors.Wrap(err, "query pixel formats")
	}

	f, ok := pick(offered, ColorFormats)
	if !ok {
		f, ok = pick(offered, MonoFormats)
	}
	if !ok {
		return "", ErrNoCompatibleFormat
	}
	if err := dev.SetPixelFormat(f); err != nil {
		return "", errors.Wrapf(err, "select pixel format %s", f)
	}
	return f, nil
}

func pick(offered, preferred []PixelFormat) (PixelFormat, bool) {
	for _, want := range preferred {
		for _, have := range offered {
			if have == want {
				return want, true
			}
		}
	}
	return "", false
}
