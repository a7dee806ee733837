// Package transform turns raw camera frames into persistable images.
package transform

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/gift"

	"github.com/buckleypaul/fastcap/internal/camera"
)

// The station mounts the camera upside-down and mirrored, which a 180
// degree rotation undoes.
var reorient = gift.New(gift.Rotate180())

// Apply normalizes the frame's pixel encoding and reorients it.
func Apply(f *camera.Frame) (image.Image, error) {
	img, err := Normalize(f)
	if err != nil {
		return nil, err
	}
	return Rotate180(img), nil
}

// Normalize converts a raw frame to a standard library image: NRGBA for
// color encodings, Gray or Gray16 for mono.
func Normalize(f *camera.Frame) (image.Image, error) {
	if f == nil {
		return nil, fmt.Errorf("transform: nil frame")
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("transform: unsupported pixel format %s", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width*bpp || len(f.Pix) < f.Stride*(f.Height-1)+f.Width*bpp {
		return nil, fmt.Errorf("transform: %dx%d %s frame has short buffer (%d bytes, stride %d)",
			f.Width, f.Height, f.Format, len(f.Pix), f.Stride)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case camera.Mono8:
		out := image.NewGray(rect)
		for y := 0; y < f.Height; y++ {
			copy(out.Pix[y*out.Stride:], f.Pix[y*f.Stride:y*f.Stride+f.Width])
		}
		return out, nil

	case camera.Mono16:
		// GenICam Mono16 is little-endian; image.Gray16 is big-endian.
		out := image.NewGray16(rect)
		for y := 0; y < f.Height; y++ {
			row := f.Pix[y*f.Stride:]
			for x := 0; x < f.Width; x++ {
				v := binary.LittleEndian.Uint16(row[2*x:])
				binary.BigEndian.PutUint16(out.Pix[y*out.Stride+2*x:], v)
			}
		}
		return out, nil

	case camera.RGB8, camera.BGR8:
		r, b := 0, 2
		if f.Format == camera.BGR8 {
			r, b = 2, 0
		}
		out := image.NewNRGBA(rect)
		for y := 0; y < f.Height; y++ {
			src := f.Pix[y*f.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < f.Width; x++ {
				dst[4*x+0] = src[3*x+r]
				dst[4*x+1] = src[3*x+1]
				dst[4*x+2] = src[3*x+b]
				dst[4*x+3] = 0xff
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("transform: unsupported pixel format %s", f.Format)
}

// Rotate180 returns img rotated by 180 degrees, keeping its color model.
func Rotate180(img image.Image) image.Image {
	bounds := reorient.Bounds(img.Bounds())
	var dst draw.Image
	switch img.(type) {
	case *image.Gray:
		dst = image.NewGray(bounds)
	case *image.Gray16:
		dst = image.NewGray16(bounds)
	default:
		dst = image.NewNRGBA(bounds)
	}
	reorient.Draw(dst, img)
	return dst
}
