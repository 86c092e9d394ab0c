package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/occur"
	"agenda/internal/search"
	"agenda/internal/store"
	"agenda/internal/tz"
)

// ErrStopped is returned by Do once the scheduler has stopped.
var ErrStopped = errors.New("alarm: scheduler stopped")

// FireFunc is told about every batch of alarms the scheduler activates.
type FireFunc func(at time.Time, due []model.Occurrence)

type request struct {
	fn   func(ctx context.Context, reg *store.Registry) error
	done chan error
}

// Scheduler owns the alarm timer. A single goroutine, started by Run, waits
// for the next due occurrence, activates it and runs the requests passed to
// Do, one at a time, so activation never interleaves with them.
type Scheduler struct {
	Now func() time.Time

	reg    *store.Registry
	zone   tz.Zone
	resync cron.Schedule
	onFire FireFunc

	requests   chan request
	reschedule chan struct{}
	stopped    chan struct{}

	// Owned by the run goroutine.
	base    time.Time
	pending *occur.Next
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResync wakes the scheduler on the given schedule to search again,
// even when no alarm is due. Rules whose next date lies beyond the search
// horizon are picked up this way.
func WithResync(s cron.Schedule) Option {
	return func(sc *Scheduler) { sc.resync = s }
}

// WithOnFire registers fn to be called after every activation.
func WithOnFire(fn FireFunc) Option {
	return func(sc *Scheduler) { sc.onFire = fn }
}

// ParseResync parses a cron expression or descriptor such as "@every 6h".
// An empty spec disables the resync.
func ParseResync(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, nil
	}
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse resync %q: %w", spec, err)
	}
	return s, nil
}

// NewScheduler returns a scheduler for the documents of reg. It does nothing
// until Run is called.
func NewScheduler(reg *store.Registry, zone tz.Zone, opts ...Option) *Scheduler {
	s := &Scheduler{
		Now:        time.Now,
		reg:        reg,
		zone:       zone,
		requests:   make(chan request),
		reschedule: make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn on the scheduler goroutine with the registry locked and waits
// for its result. It fails with ErrStopped once Run has returned.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context, reg *store.Registry) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reschedule asks the scheduler to search again, typically after items
// changed. Calls made before the scheduler gets to it coalesce.
func (s *Scheduler) Reschedule() {
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

// Next returns the occurrences currently waiting for their alarm.
func (s *Scheduler) Next(ctx context.Context) ([]model.Occurrence, error) {
	var out []model.Occurrence
	err := s.Do(ctx, func(context.Context, *store.Registry) error {
		if s.pending != nil {
			out = s.pending.Occurrences()
		}
		return nil
	})
	return out, err
}

// Run owns the timer until ctx is done. Alarms due before Run starts are
// not activated.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	timer := time.NewTimer(0)
	timer.Stop()
	defer timer.Stop()

	s.base = s.Now()
	s.plan(ctx)
	s.arm(timer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-s.requests:
			s.reg.Lock()
			err := req.fn(ctx, s.reg)
			s.reg.Unlock()
			req.done <- err

		case <-s.reschedule:
			s.plan(ctx)
			s.arm(timer)

		case <-timer.C:
			s.tick(ctx)
			s.arm(timer)
		}
	}
}

// tick activates the pending alarms when they are due; otherwise the wake
// up came from a resync or from clock drift and the search is repeated.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.Now()
	if s.pending != nil {
		if due, ok := s.pending.Time(); ok && !now.Before(due) {
			list := s.pending.Occurrences()
			s.base = due
			s.pending = Activate(ctx, s.reg, s.zone, due, list)
			if s.onFire != nil {
				s.onFire(due, list)
			}
			return
		}
	}
	if s.pending == nil || !hasNext(s.pending) {
		// Nothing within the horizon: move it forward.
		s.base = now
	}
	s.plan(ctx)
}

func hasNext(n *occur.Next) bool {
	_, ok := n.Time()
	return ok
}

// plan searches from the last activation instant, so alarms that came due
// meanwhile fire right away.
func (s *Scheduler) plan(ctx context.Context) {
	s.reg.Lock()
	defer s.reg.Unlock()

	next := occur.NewNext(s.base)
	search.DocumentsNext(ctx, s.reg.Documents(), s.zone, next)
	s.pending = next
	if t, ok := next.Time(); ok {
		log.Debug("next alarm", "at", t, "count", len(next.Occurrences()))
	}
}

// arm sets the timer to the earlier of the pending due time and the next
// resync, or stops it when there is neither.
func (s *Scheduler) arm(timer *time.Timer) {
	now := s.Now()
	var at time.Time
	if s.pending != nil {
		if due, ok := s.pending.Time(); ok {
			at = due
		}
	}
	if s.resync != nil {
		if r := s.resync.Next(now); !r.IsZero() && (at.IsZero() || r.Before(at)) {
			at = r
		}
	}
	if at.IsZero() {
		timer.Stop()
		return
	}
	timer.Reset(at.Sub(now))
}
