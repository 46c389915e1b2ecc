package host

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultThumbnailSize is the bounding box thumbnails are scaled into.
const DefaultThumbnailSize = 128

// Thumbnailer renders frame thumbnails through a Renderer. It satisfies the
// thumbnail pipeline's frame source.
type Thumbnailer struct {
	Renderer Renderer
	Size     int
}

// RenderFrame seeks to t, reads the layer's pixels, and scales them to fit
// Size while keeping aspect ratio. The playhead is restored afterwards.
// Empty bounds or a failed read yield no image.
func (th Thumbnailer) RenderFrame(layer string, t int) (image.Image, bool) {
	r := th.Renderer
	if r == nil {
		return nil, false
	}
	original := r.CurrentTime()
	defer r.Seek(original)

	r.Seek(t)
	r.ForceRefresh()

	bounds := r.LayerBounds(layer)
	if bounds.Empty() {
		return nil, false
	}
	pixels, ok := r.ReadLayerPixels(layer, bounds)
	if !ok || pixels == nil || pixels.Bounds().Empty() {
		return nil, false
	}
	size := th.Size
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return ScaleToFit(pixels, size), true
}

// ScaleToFit resamples src so its longer side equals size.
func ScaleToFit(src image.Image, size int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := size, size
	if w >= h {
		dh = max(1, (h*size+w/2)/w)
	} else {
		dw = max(1, (w*size+h/2)/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
