package thumbgen_test

import (
	"image"
	"image/color"
	"testing"
	"time"

	"framesel/internal/eventloop"
	"framesel/internal/host"
	"framesel/internal/host/hosttest"
	"framesel/internal/kra"
	"framesel/internal/thumbcache"
	"framesel/internal/thumbgen"
)

const docPath = "/art/walk.kra"

type fixture struct {
	loop     *eventloop.Manual
	doc      *hosttest.Document
	cache    *thumbcache.Cache
	pipeline *thumbgen.Pipeline
	events   []thumbgen.Ready
	firedAt  []time.Duration
	start    time.Time
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		loop:  eventloop.NewManual(start),
		doc:   hosttest.NewDocument(),
		cache: thumbcache.New("", nil),
		start: start,
	}
	for tm := 0; tm < 20; tm++ {
		f.doc.SetFrame("ink", tm, hosttest.Solid(64, 32, color.NRGBA{R: uint8(tm * 10), A: 255}))
	}
	source := host.Thumbnailer{Renderer: f.doc, Size: 32}
	f.pipeline = thumbgen.New(f.loop, f.cache, source, thumbgen.WithSettleDelay(delay))
	f.pipeline.Subscribe(func(r thumbgen.Ready) {
		f.events = append(f.events, r)
		f.firedAt = append(f.firedAt, f.loop.Now().Sub(f.start))
	})
	return f
}

func entry(tm int, ref string) thumbgen.Entry {
	return thumbgen.Entry{Document: docPath, Layer: "ink", Time: tm, Ref: kra.ContentRef(ref)}
}

func refs(events []thumbgen.Ready) []kra.ContentRef {
	out := make([]kra.ContentRef, 0, len(events))
	for _, e := range events {
		out = append(out, e.Ref)
	}
	return out
}

func equalRefs(got []kra.ContentRef, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if string(got[i]) != want[i] {
			return false
		}
	}
	return true
}

func TestJobsRunSequentiallyWithSettleGap(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	f.pipeline.Request([]thumbgen.Entry{entry(0, "f0"), entry(4, "f4"), entry(9, "f9")})

	f.loop.Advance(149 * time.Millisecond)
	if len(f.doc.Reads) != 0 {
		t.Fatalf("expected no render before settle delay, got %d", len(f.doc.Reads))
	}
	f.loop.Advance(time.Second)

	if !equalRefs(refs(f.events), "f0", "f4", "f9") {
		t.Fatalf("unexpected event order: %v", refs(f.events))
	}
	want := []time.Duration{150 * time.Millisecond, 300 * time.Millisecond, 450 * time.Millisecond}
	for i, got := range f.firedAt {
		if got != want[i] {
			t.Fatalf("event %d fired at %s, want %s", i, got, want[i])
		}
	}
	if f.doc.Time != 0 {
		t.Fatalf("expected playhead restored to 0, got %d", f.doc.Time)
	}
	if f.pipeline.Busy() {
		t.Fatal("expected pipeline idle after draining queue")
	}
	if f.loop.ActiveTimers() != 0 {
		t.Fatalf("expected no timers left, got %d", f.loop.ActiveTimers())
	}
	if _, ok := f.cache.Get(docPath, "ink", "f4"); !ok {
		t.Fatal("expected rendered thumbnail to be cached")
	}
	if b := f.events[0].Image.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
		t.Fatalf("unexpected thumbnail size %v", b)
	}
}

func TestRequestSkipsCachedEntries(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.cache.Put(docPath, "ink", "f4", image.NewNRGBA(image.Rect(0, 0, 2, 2)))

	f.pipeline.Request([]thumbgen.Entry{entry(0, "f0"), entry(4, "f4")})
	pending := f.pipeline.Pending()
	if len(pending) != 1 || pending[0].Ref != "f0" {
		t.Fatalf("expected only f0 pending, got %+v", pending)
	}
	f.loop.Advance(time.Second)
	if len(f.doc.Reads) != 1 || f.doc.Reads[0].Time != 0 {
		t.Fatalf("expected a single render at time 0, got %+v", f.doc.Reads)
	}
}

func TestCancelStopsPendingWork(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2")})
	if !f.pipeline.Busy() {
		t.Fatal("expected pipeline busy after request")
	}
	f.pipeline.Cancel()

	f.loop.Advance(time.Second)
	if len(f.events) != 0 || len(f.doc.Reads) != 0 {
		t.Fatalf("expected no work after cancel, got %d events %d reads", len(f.events), len(f.doc.Reads))
	}
	if len(f.pipeline.Pending()) != 0 {
		t.Fatal("expected empty queue after cancel")
	}
}

func TestRequestReplacesPendingBatch(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2"), entry(3, "f3")})
	f.loop.Advance(100 * time.Millisecond)
	if !equalRefs(refs(f.events), "f1") {
		t.Fatalf("expected first job done, got %v", refs(f.events))
	}

	f.pipeline.Request([]thumbgen.Entry{entry(7, "f7")})
	f.loop.Advance(time.Second)
	if !equalRefs(refs(f.events), "f1", "f7") {
		t.Fatalf("expected replaced batch, got %v", refs(f.events))
	}
}

func TestRequestFromSubscriberWaitsForJobToReturn(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	var timersDuringCallback int
	requested := false
	f.pipeline.Subscribe(func(r thumbgen.Ready) {
		if requested {
			return
		}
		requested = true
		f.pipeline.Request([]thumbgen.Entry{entry(5, "f5")})
		timersDuringCallback = f.loop.ActiveTimers()
	})

	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2")})
	f.loop.Advance(100 * time.Millisecond)

	if timersDuringCallback != 0 {
		t.Fatalf("expected no timer armed inside the job, got %d", timersDuringCallback)
	}
	if f.loop.ActiveTimers() != 1 {
		t.Fatalf("expected timer re-armed after job returned, got %d", f.loop.ActiveTimers())
	}
	f.loop.Advance(time.Second)
	if !equalRefs(refs(f.events), "f1", "f5") {
		t.Fatalf("unexpected events: %v", refs(f.events))
	}
	if f.firedAt[1] != 200*time.Millisecond {
		t.Fatalf("expected second job one settle delay later, got %s", f.firedAt[1])
	}
}

func TestResultDiscardedWhenBatchReplacedDuringRender(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.doc.OnRead = func(call hosttest.RenderCall) {
		if call.Time == 1 {
			f.pipeline.Cancel()
		}
	}
	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2")})
	f.loop.Advance(time.Second)

	if len(f.events) != 0 {
		t.Fatalf("expected no events from cancelled batch, got %v", refs(f.events))
	}
	if f.cache.Has(docPath, "ink", "f1") {
		t.Fatal("expected cancelled render not to be cached")
	}
	if len(f.doc.Reads) != 1 {
		t.Fatalf("expected remaining jobs dropped, got %d reads", len(f.doc.Reads))
	}
}

func TestRenderFailureSkipsJob(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	missing := thumbgen.Entry{Document: docPath, Layer: "ink", Time: 42, Ref: "f42"}
	f.pipeline.Request([]thumbgen.Entry{missing, entry(3, "f3")})
	f.loop.Advance(time.Second)

	if !equalRefs(refs(f.events), "f3") {
		t.Fatalf("expected failed job skipped, got %v", refs(f.events))
	}
	if f.cache.Has(docPath, "ink", "f42") {
		t.Fatal("expected nothing cached for failed render")
	}
}

func TestCacheHitAtJobTimeStillEmits(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1")})
	f.cache.Put(docPath, "ink", "f1", image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	f.loop.Advance(time.Second)

	if len(f.doc.Reads) != 0 {
		t.Fatalf("expected cache hit to skip rendering, got %d reads", len(f.doc.Reads))
	}
	if !equalRefs(refs(f.events), "f1") {
		t.Fatalf("expected ready event for cached entry, got %v", refs(f.events))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	var extra int
	unsubscribe := f.pipeline.Subscribe(func(thumbgen.Ready) { extra++ })
	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2")})
	f.loop.Advance(10 * time.Millisecond)
	unsubscribe()
	f.loop.Advance(time.Second)

	if extra != 1 {
		t.Fatalf("expected one delivery before unsubscribe, got %d", extra)
	}
	if len(f.events) != 2 {
		t.Fatalf("expected primary subscriber to see both events, got %d", len(f.events))
	}
}

func TestEverySubscriberSeesEventWhenOneReplacesBatch(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	var middle, last []thumbgen.Ready
	f.pipeline.Subscribe(func(r thumbgen.Ready) {
		middle = append(middle, r)
		if r.Ref == "f1" {
			f.pipeline.Request([]thumbgen.Entry{entry(3, "f3")})
		}
	})
	f.pipeline.Subscribe(func(r thumbgen.Ready) { last = append(last, r) })

	f.pipeline.Request([]thumbgen.Entry{entry(1, "f1"), entry(2, "f2")})
	f.loop.Advance(time.Second)

	for name, got := range map[string][]thumbgen.Ready{"first": f.events, "middle": middle, "last": last} {
		if !equalRefs(refs(got), "f1", "f3") {
			t.Fatalf("%s subscriber saw %v, want [f1 f3]", name, refs(got))
		}
	}
}
