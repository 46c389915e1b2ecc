// Package hosttest provides an in-memory painting application for tests.
package hosttest

import (
	"image"
	"image/color"
	"image/draw"
)

// RenderCall records one pixel read.
type RenderCall struct {
	Layer string
	Time  int
}

// Document is a fake host document. Layer content is keyed by layer and
// time; Composite backs Snapshot.
type Document struct {
	Time      int
	Layers    map[string]map[int]image.Image
	Composite image.Image
	// Actions lists the named actions the host knows; nil means all.
	Actions map[string]bool
	// SnapshotFails makes Snapshot report failure.
	SnapshotFails bool

	Seeks     []int
	Refreshes int
	Triggered []string
	Reads     []RenderCall
	// OnRead runs during every pixel read, before it returns.
	OnRead func(RenderCall)
}

// NewDocument creates an empty fake document.
func NewDocument() *Document {
	return &Document{Layers: map[string]map[int]image.Image{}}
}

// SetFrame stores img as the layer's content at time t.
func (d *Document) SetFrame(layer string, t int, img image.Image) {
	if d.Layers[layer] == nil {
		d.Layers[layer] = map[int]image.Image{}
	}
	d.Layers[layer][t] = img
}

// Seek moves the playhead.
func (d *Document) Seek(t int) {
	d.Time = t
	d.Seeks = append(d.Seeks, t)
}

// CurrentTime returns the playhead.
func (d *Document) CurrentTime() int {
	return d.Time
}

// ForceRefresh counts projection refreshes.
func (d *Document) ForceRefresh() {
	d.Refreshes++
}

// LayerBounds returns the bounds of the layer's content at the playhead.
func (d *Document) LayerBounds(layer string) image.Rectangle {
	img, ok := d.Layers[layer][d.Time]
	if !ok || img == nil {
		return image.Rectangle{}
	}
	return img.Bounds()
}

// ReadLayerPixels returns the layer's content at the playhead.
func (d *Document) ReadLayerPixels(layer string, bounds image.Rectangle) (image.Image, bool) {
	call := RenderCall{Layer: layer, Time: d.Time}
	d.Reads = append(d.Reads, call)
	if d.OnRead != nil {
		d.OnRead(call)
	}
	img, ok := d.Layers[layer][d.Time]
	if !ok || img == nil {
		return nil, false
	}
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out, true
}

// TriggerNamedAction records the action and reports whether it exists.
func (d *Document) TriggerNamedAction(name string) bool {
	if d.Actions != nil && !d.Actions[name] {
		return false
	}
	d.Triggered = append(d.Triggered, name)
	return true
}

// Snapshot returns Composite scaled by nearest-neighbour sampling.
func (d *Document) Snapshot(width, height int) (image.Image, bool) {
	if d.SnapshotFails || d.Composite == nil {
		return nil, false
	}
	src := d.Composite.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := src.Min.X + x*src.Dx()/width
			sy := src.Min.Y + y*src.Dy()/height
			out.Set(x, y, d.Composite.At(sx, sy))
		}
	}
	return out, true
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}
