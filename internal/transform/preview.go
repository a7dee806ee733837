package transform

import (
	"context"
	"image"

	"github.com/disintegration/gift"
)

// DefaultPreviewPercent is the live-feed scale when none is set.
const DefaultPreviewPercent = 5

// Shrink is the live-feed previewer: it scales a shot down to Percent of
// its size with area resampling.
type Shrink struct {
	Percent int
}

func (s Shrink) Preview(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pct := s.Percent
	if pct <= 0 {
		pct = DefaultPreviewPercent
	}
	b := img.Bounds()
	w, h := b.Dx()*pct/100, b.Dy()*pct/100
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	g := gift.New(gift.Resize(w, h, gift.BoxResampling))
	dst := image.NewNRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst, nil
}
