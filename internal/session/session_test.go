package session_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"framesel/internal/drawmon"
	"framesel/internal/eventloop"
	"framesel/internal/host"
	"framesel/internal/host/hosttest"
	"framesel/internal/kra"
	"framesel/internal/registry"
	"framesel/internal/session"
	"framesel/internal/testsupport"
	"framesel/internal/thumbcache"
	"framesel/internal/thumbgen"
)

const (
	inkLayer   = "{6C2B4E0A-53D1-4F8B-9C1E-2A7D3F4B5E61}"
	colorLayer = "{0F1E2D3C-4B5A-4968-8776-655443322110}"
)

var (
	inkID   = kra.NormalizeLayerID(inkLayer)
	colorID = kra.NormalizeLayerID(colorLayer)
)

type harness struct {
	path     string
	loop     *eventloop.Manual
	host     *hosttest.Document
	cache    *thumbcache.Cache
	store    *registry.Store
	pipeline *thumbgen.Pipeline
	session  *session.Session
	ready    []thumbgen.Ready
}

func inkOnly() testsupport.KraDocument {
	return testsupport.KraDocument{
		Name: "walk",
		Layers: []testsupport.KraLayer{{
			UUID:          inkLayer,
			Name:          "Ink",
			KeyframesFile: "layer2.keyframes.xml",
			Keyframes: []testsupport.KraKeyframe{
				{Time: 0, Frame: "layer2.f1"},
				{Time: 2, Frame: "layer2.f0"},
				{Time: 4, Frame: "layer2.f0"},
				{Time: 8, Frame: "layer2.f1"},
			},
			Blobs: map[string]int{"layer2.f0": 500, "layer2.f1": 300},
		}},
	}
}

func withColor(doc testsupport.KraDocument) testsupport.KraDocument {
	doc.Layers = append(doc.Layers, testsupport.KraLayer{
		UUID:          colorLayer,
		Name:          "Color",
		KeyframesFile: "layer3.keyframes.xml",
		Keyframes:     []testsupport.KraKeyframe{{Time: 0, Frame: "layer3.f0"}},
		Blobs:         map[string]int{"layer3.f0": 800},
	})
	return doc
}

func newHarness(t *testing.T, doc testsupport.KraDocument) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		path:  testsupport.WriteKra(t, testsupport.BaseDir(cfg), "walk.kra", doc),
		loop:  eventloop.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		host:  hosttest.NewDocument(),
		cache: thumbcache.New(cfg.Paths.CacheDir, nil),
		store: testsupport.MustOpenRegistry(t, cfg),
	}
	for _, tm := range []int{0, 2, 4, 8} {
		h.host.SetFrame(inkID, tm, hosttest.Solid(20, 20, color.NRGBA{R: uint8(tm * 20), A: 255}))
	}
	h.host.SetFrame(colorID, 0, hosttest.Solid(20, 20, color.NRGBA{B: 255, A: 255}))

	h.pipeline = thumbgen.New(h.loop, h.cache, host.Thumbnailer{Renderer: h.host, Size: 16},
		thumbgen.WithSettleDelay(10*time.Millisecond))
	h.session = session.New(h.path, h.cache, h.pipeline, session.WithRegistry(h.store))
	h.session.OnReady(func(r thumbgen.Ready) { h.ready = append(h.ready, r) })
	t.Cleanup(h.session.Close)
	return h
}

func TestRefreshRegistersAndRequestsRepresentatives(t *testing.T) {
	h := newHarness(t, inkOnly())
	ctx := context.Background()

	result, err := h.session.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Document != "walk.kra" || result.Layers != 1 || result.Groups != 2 || result.Requested != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	frames, err := h.store.Frames(ctx, "walk.kra", inkID)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Time != 0 || frames[0].Ref != "layer2.f1" || frames[1].Time != 2 || frames[1].Ref != "layer2.f0" {
		t.Fatalf("unexpected registered frames: %#v", frames)
	}

	h.session.SetLayer(inkLayer)
	h.loop.Advance(time.Second)
	if len(h.ready) != 2 || h.ready[0].Ref != "layer2.f1" || h.ready[1].Ref != "layer2.f0" {
		t.Fatalf("unexpected ready events: %+v", h.ready)
	}
	for _, ref := range []kra.ContentRef{"layer2.f0", "layer2.f1"} {
		if !h.cache.Has("walk.kra", inkID, ref) {
			t.Fatalf("expected %s cached", ref)
		}
	}
}

func TestRefreshEvictsByDiffAndDropsVanishedLayers(t *testing.T) {
	h := newHarness(t, withColor(inkOnly()))
	ctx := context.Background()
	if _, err := h.session.Refresh(ctx); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)
	stale := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	h.cache.Put("walk.kra", inkID, "layer2.f5", stale)
	if !h.cache.Has("walk.kra", colorID, "layer3.f0") {
		t.Fatal("expected color thumbnail cached after first refresh")
	}

	testsupport.WriteKra(t, filepath.Dir(h.path), "walk.kra", inkOnly())
	result, err := h.session.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if result.Evicted != 1 || result.DroppedLayers != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if h.cache.Has("walk.kra", inkID, "layer2.f5") {
		t.Fatal("expected stale reference evicted")
	}
	if !h.cache.Has("walk.kra", inkID, "layer2.f0") || !h.cache.Has("walk.kra", inkID, "layer2.f1") {
		t.Fatal("expected referenced thumbnails kept")
	}
	if h.cache.Has("walk.kra", colorID, "layer3.f0") {
		t.Fatal("expected vanished layer dropped from cache")
	}
	if result.Requested != 0 {
		t.Fatalf("expected everything already cached, requested %d", result.Requested)
	}
	frames, err := h.store.Frames(ctx, "walk.kra", colorID)
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected vanished layer cleared from registry, got %#v %v", frames, err)
	}
}

func TestRefreshOfUnreadableDocumentChangesNothing(t *testing.T) {
	h := newHarness(t, inkOnly())
	ctx := context.Background()
	if _, err := h.session.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := os.WriteFile(h.path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("corrupt document: %v", err)
	}

	result, err := h.session.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh of corrupt document failed: %v", err)
	}
	if result.Layers != 0 {
		t.Fatalf("expected no layers, got %+v", result)
	}
	frames, err := h.store.Frames(ctx, "walk.kra", inkID)
	if err != nil || len(frames) != 2 {
		t.Fatalf("expected registered frames untouched, got %#v %v", frames, err)
	}
	if _, ok := h.session.Parsed().Lookup(inkID); !ok {
		t.Fatal("expected previous parse retained")
	}
}

func TestReadyFilteredByLayerContext(t *testing.T) {
	h := newHarness(t, withColor(inkOnly()))
	h.session.SetLayer(colorLayer)
	if _, err := h.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)

	if len(h.ready) != 1 || h.ready[0].Layer != colorID {
		t.Fatalf("expected only color layer events, got %+v", h.ready)
	}
	if !h.cache.Has("walk.kra", inkID, "layer2.f0") {
		t.Fatal("expected other layers still cached")
	}
}

func TestDrawingInvalidatesAndRerendersFirst(t *testing.T) {
	h := newHarness(t, inkOnly())
	h.session.SetLayer(inkLayer)
	if _, err := h.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)
	h.ready = nil
	reads := len(h.host.Reads)

	h.session.HandleDrawing(drawmon.RefreshNeeded{Time: 4})
	if h.cache.Has("walk.kra", inkID, "layer2.f0") {
		t.Fatal("expected drawn content invalidated")
	}
	if !h.cache.Has("walk.kra", inkID, "layer2.f1") {
		t.Fatal("expected other content untouched")
	}
	pending := h.pipeline.Pending()
	if len(pending) != 1 || pending[0].Time != 4 || pending[0].Ref != "layer2.f0" {
		t.Fatalf("unexpected pending work: %+v", pending)
	}

	h.loop.Advance(time.Second)
	if len(h.host.Reads) != reads+1 || h.host.Reads[reads].Time != 4 {
		t.Fatalf("expected one re-render at time 4, got %+v", h.host.Reads[reads:])
	}
	if len(h.ready) != 1 || h.ready[0].Ref != "layer2.f0" {
		t.Fatalf("unexpected ready events: %+v", h.ready)
	}
}

func TestDrawingOnHoldFrameResolvesHeldKeyframe(t *testing.T) {
	doc := inkOnly()
	doc.Layers[0].Keyframes = []testsupport.KraKeyframe{
		{Time: 0, Frame: "layer2.f1"},
		{Time: 2, Frame: "layer2.f0"},
		{Time: 5, Frame: "layer2.f9"},
		{Time: 8, Frame: "layer2.f1"},
	}
	doc.Layers[0].Blobs["layer2.f9"] = 40
	h := newHarness(t, doc)
	h.session.SetLayer(inkLayer)
	if _, err := h.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)

	h.session.HandleDrawing(drawmon.RefreshNeeded{Time: 3})
	if h.cache.Has("walk.kra", inkID, "layer2.f0") {
		t.Fatal("expected content held from time 2 invalidated")
	}
	if !h.cache.Has("walk.kra", inkID, "layer2.f1") {
		t.Fatal("expected other content untouched")
	}
	pending := h.pipeline.Pending()
	if len(pending) != 1 || pending[0].Time != 3 || pending[0].Ref != "layer2.f0" {
		t.Fatalf("unexpected pending work: %+v", pending)
	}

	h.session.HandleDrawing(drawmon.RefreshNeeded{Time: 6})
	if got := h.pipeline.Pending(); len(got) != 1 || got[0].Ref != "layer2.f0" {
		t.Fatalf("expected time held from a blank keyframe to be ignored, got %+v", got)
	}
	if !h.cache.Has("walk.kra", inkID, "layer2.f1") {
		t.Fatal("expected blank hold not to invalidate earlier content")
	}
}

func TestDrawingMonitorDrivesInvalidation(t *testing.T) {
	h := newHarness(t, inkOnly())
	h.session.SetLayer(inkLayer)
	if _, err := h.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)
	h.ready = nil

	h.host.Composite = hosttest.Solid(32, 32, color.NRGBA{A: 255})
	mon := drawmon.New(h.loop, h.host)
	h.session.Attach(mon)
	mon.Activate()
	h.loop.Advance(time.Second)

	h.host.Time = 2
	h.host.Composite = hosttest.Solid(32, 32, color.NRGBA{G: 200, A: 255})
	h.loop.Advance(12 * time.Second)

	if len(h.ready) != 1 || h.ready[0].Ref != "layer2.f0" || h.ready[0].Time != 2 {
		t.Fatalf("expected re-render of drawn content, got %+v", h.ready)
	}
	mon.Deactivate()
}

func TestReloadUsesRegisteredFrames(t *testing.T) {
	h := newHarness(t, inkOnly())
	ctx := context.Background()
	if _, err := h.session.Reload(ctx); !errors.Is(err, session.ErrNoLayer) {
		t.Fatalf("expected ErrNoLayer, got %v", err)
	}
	if _, err := h.session.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	h.loop.Advance(time.Second)

	fresh := thumbcache.New("", nil)
	pipeline := thumbgen.New(h.loop, fresh, host.Thumbnailer{Renderer: h.host, Size: 16})
	restarted := session.New(h.path, fresh, pipeline, session.WithRegistry(h.store))
	defer restarted.Close()
	restarted.SetLayer(inkLayer)

	n, err := restarted.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if n != 2 || len(pipeline.Pending()) != 2 {
		t.Fatalf("expected two registered frames requested, got %d (%d pending)", n, len(pipeline.Pending()))
	}
}

func TestCloneToUsesNearestMember(t *testing.T) {
	h := newHarness(t, inkOnly())
	if _, err := h.session.CloneTo(h.host, "layer2.f1", 5); !errors.Is(err, session.ErrNoLayer) {
		t.Fatalf("expected ErrNoLayer, got %v", err)
	}
	h.session.SetLayer(inkLayer)
	if _, err := h.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	h.host.Time = 5
	h.host.Seeks = nil
	source, err := h.session.CloneTo(h.host, "layer2.f1", 5)
	if err != nil {
		t.Fatalf("CloneTo failed: %v", err)
	}
	if source != 8 {
		t.Fatalf("expected nearest source 8, got %d", source)
	}
	if len(h.host.Triggered) != 2 || h.host.Triggered[0] != host.ActionCopyAsClones || h.host.Triggered[1] != host.ActionPasteFrames {
		t.Fatalf("unexpected actions: %v", h.host.Triggered)
	}
	if h.host.Time != 5 {
		t.Fatalf("expected playhead restored to 5, got %d", h.host.Time)
	}

	if _, err := h.session.CloneTo(h.host, "layer2.f0", 4); !errors.Is(err, host.ErrSameFrame) {
		t.Fatalf("expected ErrSameFrame, got %v", err)
	}
	if _, err := h.session.CloneTo(h.host, "layer2.f9", 4); !errors.Is(err, session.ErrUnknownContent) {
		t.Fatalf("expected ErrUnknownContent, got %v", err)
	}
}
