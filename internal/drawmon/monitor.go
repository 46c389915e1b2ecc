package drawmon

import (
	"bytes"
	"crypto/md5"
	"image"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/image/draw"

	"framesel/internal/eventloop"
	"framesel/internal/host"
	"framesel/internal/logging"
)

const (
	DefaultPollInterval = time.Second
	DefaultIdleGap      = 10 * time.Second
	DefaultSnapshotSize = 16
)

// RefreshNeeded is emitted once drawing has been idle for the idle gap.
// Time is the playhead position observed at the last detected change.
type RefreshNeeded struct {
	Time int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets how often the composite is sampled.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithIdleGap sets how long sampling must see no change before signalling.
func WithIdleGap(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithSnapshotSize sets the fingerprint edge length in pixels.
func WithSnapshotSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.size = n
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// Monitor is a change detector driven by the event loop. All methods must be
// called from that loop.
type Monitor struct {
	loop   eventloop.Scheduler
	doc    host.DocumentSampler
	poll   time.Duration
	idle   time.Duration
	size   int
	logger *slog.Logger

	active   bool
	sampler  eventloop.Timer
	debounce eventloop.Timer

	last        []byte
	pending     bool
	pendingTime int

	subs []func(RefreshNeeded)
}

// New builds an inactive monitor.
func New(loop eventloop.Scheduler, doc host.DocumentSampler, opts ...Option) *Monitor {
	m := &Monitor{
		loop: loop,
		doc:  doc,
		poll: DefaultPollInterval,
		idle: DefaultIdleGap,
		size: DefaultSnapshotSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = logging.NewComponentLogger(m.logger, "drawmon")
	return m
}

// Subscribe registers fn for refresh signals.
func (m *Monitor) Subscribe(fn func(RefreshNeeded)) {
	if fn != nil {
		m.subs = append(m.subs, fn)
	}
}

// Active reports whether sampling is running.
func (m *Monitor) Active() bool {
	return m.active
}

// Pending returns the time of an undelivered change, if any.
func (m *Monitor) Pending() (int, bool) {
	return m.pendingTime, m.pending
}

// Activate starts sampling, or restarts it from a clean state when already
// active. The first sample only records a baseline.
func (m *Monitor) Activate() {
	m.reset()
	m.active = true
	m.sampler = m.loop.AfterFunc(m.poll, m.tick)
	m.logger.Debug("drawing monitor activated",
		logging.Duration("poll_interval", m.poll),
		logging.Duration("idle_gap", m.idle),
	)
}

// Deactivate stops sampling and drops any undelivered change.
func (m *Monitor) Deactivate() {
	if !m.active {
		return
	}
	m.reset()
	m.logger.Debug("drawing monitor deactivated")
}

func (m *Monitor) reset() {
	m.active = false
	stop(&m.sampler)
	stop(&m.debounce)
	m.last = nil
	m.pending = false
	m.pendingTime = 0
}

func (m *Monitor) tick() {
	m.sampler = nil
	if !m.active {
		return
	}
	m.sample()
	if m.active && m.sampler == nil {
		m.sampler = m.loop.AfterFunc(m.poll, m.tick)
	}
}

func (m *Monitor) sample() {
	if m.doc == nil {
		return
	}
	snapshot, ok := m.doc.Snapshot(m.size, m.size)
	if !ok || snapshot == nil {
		return
	}
	sum := Fingerprint(snapshot)
	if m.last == nil {
		m.last = sum
		return
	}
	if bytes.Equal(sum, m.last) {
		return
	}
	m.last = sum
	m.pendingTime = m.doc.CurrentTime()
	m.pending = true
	stop(&m.debounce)
	m.debounce = m.loop.AfterFunc(m.idle, m.fire)
}

func (m *Monitor) fire() {
	m.debounce = nil
	if !m.pending {
		return
	}
	signal := RefreshNeeded{Time: m.pendingTime}
	m.pending = false
	m.logger.Debug("drawing settled", logging.Int(logging.FieldTime, signal.Time))
	for _, fn := range slices.Clone(m.subs) {
		fn(signal)
	}
}

// Fingerprint returns the MD5 of img's pixels in NRGBA byte order.
func Fingerprint(img image.Image) []byte {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	h := md5.New()
	rowBytes := nrgba.Rect.Dx() * 4
	for y := 0; y < nrgba.Rect.Dy(); y++ {
		offset := y * nrgba.Stride
		h.Write(nrgba.Pix[offset : offset+rowBytes])
	}
	return h.Sum(nil)
}

func stop(t *eventloop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
