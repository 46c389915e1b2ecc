package eventloop

import "time"

// Manual is a virtual-time Scheduler. Nothing runs until the test calls
// RunPending or Advance.
type Manual struct {
	now    time.Time
	seq    int
	timers []*manualTimer
	posted []func()
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

type manualTimer struct {
	when   time.Time
	seq    int
	fn     func()
	active bool
}

func (t *manualTimer) Stop() bool {
	was := t.active
	t.active = false
	return was
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// Post queues fn for the next RunPending.
func (m *Manual) Post(fn func()) {
	if fn != nil {
		m.posted = append(m.posted, fn)
	}
}

// AfterFunc schedules fn at Now()+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{when: m.now.Add(d), seq: m.seq, fn: fn, active: true}
	m.timers = append(m.timers, t)
	return t
}

// RunPending runs posted callbacks, including ones posted while running,
// until none remain. Timers are not advanced.
func (m *Manual) RunPending() {
	for len(m.posted) > 0 {
		fn := m.posted[0]
		m.posted = m.posted[1:]
		fn()
	}
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order (ties in scheduling order). Virtual time is set to each timer's
// deadline while its callback runs.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		m.RunPending()
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.when
		next.active = false
		next.fn()
	}
	m.now = target
	m.RunPending()
}

// ActiveTimers returns the number of timers that have neither fired nor been
// stopped.
func (m *Manual) ActiveTimers() int {
	m.compact()
	return len(m.timers)
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	m.compact()
	var next *manualTimer
	for _, t := range m.timers {
		if t.when.After(target) {
			continue
		}
		if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.active {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = live
}
