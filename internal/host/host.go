package host

import "image"

// Navigator moves the document playhead. Seek and ForceRefresh are
// asynchronous relative to pixel reads in real hosts.
type Navigator interface {
	Seek(t int)
	CurrentTime() int
	ForceRefresh()
}

// PixelReader reads back layer pixels at the current playhead.
type PixelReader interface {
	LayerBounds(layer string) image.Rectangle
	ReadLayerPixels(layer string, bounds image.Rectangle) (image.Image, bool)
}

// Renderer is everything needed to capture a frame thumbnail.
type Renderer interface {
	Navigator
	PixelReader
}

// ActionTrigger invokes a named application action.
type ActionTrigger interface {
	TriggerNamedAction(name string) bool
}

// Cloner can run the native copy-as-clone and paste actions.
type Cloner interface {
	Navigator
	ActionTrigger
}

// DocumentSampler produces small composite snapshots of the active document
// for change detection.
type DocumentSampler interface {
	Snapshot(width, height int) (image.Image, bool)
	CurrentTime() int
}
