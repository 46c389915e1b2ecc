package thumbgen

import (
	"image"
	"log/slog"
	"slices"
	"time"

	"framesel/internal/eventloop"
	"framesel/internal/kra"
	"framesel/internal/logging"
)

// DefaultSettleDelay is the gap enforced between renderer jobs.
const DefaultSettleDelay = 150 * time.Millisecond

// Entry identifies one thumbnail to produce. Time is the timeline position
// rendered; Ref is the cache key.
type Entry struct {
	Document string
	Layer    string
	Time     int
	Ref      kra.ContentRef
}

// Ready is emitted after a job produced (or found) a thumbnail.
type Ready struct {
	Entry
	Image image.Image
}

// FrameSource renders a layer at a timeline time.
type FrameSource interface {
	RenderFrame(layer string, t int) (image.Image, bool)
}

// Cache is the subset of the thumbnail cache the pipeline uses.
type Cache interface {
	Get(doc, layer string, ref kra.ContentRef) (image.Image, bool)
	Has(doc, layer string, ref kra.ContentRef) bool
	Put(doc, layer string, ref kra.ContentRef, img image.Image)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline is a sequential, rate-limited thumbnail job queue. All methods
// must be called from the loop the pipeline was built with.
type Pipeline struct {
	loop   eventloop.Scheduler
	cache  Cache
	source FrameSource
	delay  time.Duration
	logger *slog.Logger

	queue      []Entry
	timer      eventloop.Timer
	guard      eventloop.Guard
	generation uint64

	subs    map[int]func(Ready)
	subIDs  []int
	nextSub int
}

// New builds a pipeline.
func New(loop eventloop.Scheduler, cache Cache, source FrameSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		loop:   loop,
		cache:  cache,
		source: source,
		delay:  DefaultSettleDelay,
		subs:   map[int]func(Ready){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = logging.NewComponentLogger(p.logger, "thumbgen")
	return p
}

// Subscribe registers fn for Ready events and returns a function that
// removes it. Subscribers run in registration order.
func (p *Pipeline) Subscribe(fn func(Ready)) func() {
	if fn == nil {
		return func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subIDs = append(p.subIDs, id)
	return func() {
		delete(p.subs, id)
		for i, existing := range p.subIDs {
			if existing == id {
				p.subIDs = append(p.subIDs[:i], p.subIDs[i+1:]...)
				break
			}
		}
	}
}

// Request replaces pending work with entries, dropping those the cache
// already holds. The first job runs after the settle delay.
func (p *Pipeline) Request(entries []Entry) {
	p.Cancel()

	queue := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if p.cache != nil && p.cache.Has(e.Document, e.Layer, e.Ref) {
			continue
		}
		queue = append(queue, e)
	}
	p.queue = queue
	p.logger.Debug("thumbnail batch queued",
		logging.Int("requested", len(entries)),
		logging.Int("queued", len(queue)),
	)
	p.arm()
}

// Cancel empties the queue and stops the schedule. A job already in flight
// finishes, but its result is discarded.
func (p *Pipeline) Cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.queue = nil
	p.generation++
}

// Pending returns a copy of the queued entries, next job first.
func (p *Pipeline) Pending() []Entry {
	out := make([]Entry, len(p.queue))
	copy(out, p.queue)
	return out
}

// Busy reports whether a job is running or scheduled.
func (p *Pipeline) Busy() bool {
	return p.guard.Busy() || p.timer != nil
}

// arm schedules the next job unless one is in flight or already scheduled;
// an in-flight job re-arms when it returns.
func (p *Pipeline) arm() {
	if len(p.queue) == 0 || p.timer != nil || p.guard.Busy() {
		return
	}
	p.timer = p.loop.AfterFunc(p.delay, p.runNext)
}

func (p *Pipeline) runNext() {
	p.timer = nil
	if err := p.guard.Enter(); err != nil {
		logging.ErrorWithContext(p.logger, "thumbnail job refused", "job_reentrant",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "a renderer callback re-entered the event loop"),
		)
		return
	}
	p.process()
	p.guard.Exit()
	p.arm()
}

func (p *Pipeline) process() {
	if len(p.queue) == 0 {
		return
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	generation := p.generation

	logger := p.logger.With(
		logging.String(logging.FieldDocument, entry.Document),
		logging.String(logging.FieldLayer, entry.Layer),
		logging.String(logging.FieldContentRef, string(entry.Ref)),
		logging.Int(logging.FieldTime, entry.Time),
	)

	var img image.Image
	var ok bool
	if p.cache != nil {
		img, ok = p.cache.Get(entry.Document, entry.Layer, entry.Ref)
	}
	if !ok {
		if p.source == nil {
			return
		}
		img, ok = p.source.RenderFrame(entry.Layer, entry.Time)
		if !ok || img == nil {
			logger.Debug("frame render returned nothing; skipping")
			return
		}
		if generation != p.generation {
			logger.Debug("batch replaced during render; discarding result")
			return
		}
		if p.cache != nil {
			p.cache.Put(entry.Document, entry.Layer, entry.Ref, img)
		}
	}
	p.emit(Ready{Entry: entry, Image: img})
}

// emit delivers ready to every subscriber registered when delivery starts,
// even if one of them replaces the batch. Subscribers added meanwhile wait for
// the next event.
func (p *Pipeline) emit(ready Ready) {
	for _, id := range slices.Clone(p.subIDs) {
		if fn, ok := p.subs[id]; ok {
			fn(ready)
		}
	}
}
