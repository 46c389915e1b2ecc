package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"framesel/internal/logging"
)

// ErrReentrant is returned by Guard.Enter while another job is in flight.
var ErrReentrant = errors.New("job started while another job is in flight")

// Timer is a scheduled one-shot callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// Scheduler runs callbacks serially. Implementations guarantee that a
// stopped timer's callback never runs.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Post(fn func())
}

// Loop is a Scheduler backed by wall-clock timers and one dispatch goroutine.
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// New creates a loop. Callbacks posted before Run are kept until it starts.
func New(logger *slog.Logger) *Loop {
	return &Loop{
		logger: logging.NewComponentLogger(logger, "eventloop"),
		wake:   make(chan struct{}, 1),
	}
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc runs fn on the loop goroutine once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.claim() {
				fn()
			}
		})
	})
	return t
}

// Run dispatches callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.dispatch(fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(l.logger, "loop callback panicked", "callback_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this with the log file attached"),
			)
		}
	}()
	fn()
}

type loopTimer struct {
	mu    sync.Mutex
	done  bool
	timer *time.Timer
}

// claim marks the timer fired; it fails once Stop has won.
func (t *loopTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}

// Guard makes "one job in flight" a checked precondition.
type Guard struct {
	busy bool
}

// Enter marks a job in flight, or returns ErrReentrant if one already is.
func (g *Guard) Enter() error {
	if g.busy {
		return ErrReentrant
	}
	g.busy = true
	return nil
}

// Exit marks the in-flight job finished.
func (g *Guard) Exit() {
	g.busy = false
}

// Busy reports whether a job is in flight.
func (g *Guard) Busy() bool {
	return g.busy
}
