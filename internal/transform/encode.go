package transform

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/astrogo/fitsio"
)

// Supported output formats.
const (
	PNG  = "png"
	JPEG = "jpg"
	FITS = "fits"
)

// Ext returns the file extension for a format.
func Ext(format string) (string, error) {
	switch format {
	case PNG, JPEG, FITS:
		return format, nil
	case "jpeg":
		return JPEG, nil
	}
	return "", fmt.Errorf("transform: unknown image format %q", format)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format string) error {
	ext, err := Ext(format)
	if err != nil {
		return err
	}
	switch ext {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	default:
		return writeFits(w, img)
	}
}

// writeFits stores img as 16-bit FITS, one plane per channel (1 for mono,
// 3 for color), offset by BZERO so the full unsigned range fits.
func writeFits(w io.Writer, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	planes := 3
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		planes = 1
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if planes > 1 {
		dims = append(dims, planes)
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	err = im.Header().Append(
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0},
		fitsio.Card{Name: "ORIGIN", Value: "fastcap", Comment: "fastener imaging station"},
	)
	if err != nil {
		return err
	}

	plane := width * height
	ints := make([]int16, plane*planes)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if planes == 1 {
				g := color.Gray16Model.Convert(c).(color.Gray16)
				ints[idx] = int16(int32(g.Y) - 32768)
				continue
			}
			r, g, bl, _ := c.RGBA()
			ints[idx] = int16(int32(r) - 32768)
			ints[plane+idx] = int16(int32(g) - 32768)
			ints[2*plane+idx] = int16(int32(bl) - 32768)
		}
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return fits.Write(im)
}
