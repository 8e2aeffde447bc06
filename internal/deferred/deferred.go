// Package deferred implements the Deferred Scheduler (spec §4.6): a
// debounced, single-threaded scheduler that coalesces repeated
// activate/deactivate requests for the same customer into one delayed
// Fleet Administrator call.
//
// Grounded on internal/websocket.Hub's single-writer Run(ctx) event loop: all
// scheduler state is mutated only inside the run goroutine, selecting on a
// command channel and a single rearm-able timer, so no mutex is needed.
package deferred

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Fleet is the narrow slice of the Fleet Administrator the scheduler drives
// on timer fire (§4.6, §4.7).
type Fleet interface {
	Activate(ctx context.Context, customerID uint32) error
	Deactivate(ctx context.Context, customerID uint32) error
}

type scheduleCmd struct {
	customerID uint32
	deactivate bool
}

// Scheduler is the Deferred Scheduler. The zero value is not usable; build
// with New, then run it in its own goroutine via Run.
type Scheduler struct {
	debounce time.Duration
	fleet    Fleet
	log      *zap.Logger

	commands chan scheduleCmd
	stopped  chan struct{}

	// buckets and pending are touched only inside Run's goroutine.
	buckets map[time.Time]map[uint32]bool
	pending map[uint32]time.Time
}

// New constructs a Scheduler. debounce is the fixed delay applied to every
// schedule request (spec default ~10s).
func New(debounce time.Duration, fleet Fleet, log *zap.Logger) *Scheduler {
	if debounce <= 0 {
		debounce = 10 * time.Second
	}
	return &Scheduler{
		debounce: debounce,
		fleet:    fleet,
		log:      log.Named("deferred"),
		commands: make(chan scheduleCmd, 256),
		stopped:  make(chan struct{}),
		buckets:  make(map[time.Time]map[uint32]bool),
		pending:  make(map[uint32]time.Time),
	}
}

// Enqueue requests that customerID be activated or deactivated after the
// debounce window, replacing any pending request for the same customer
// (spec §4.6's schedule operation). Safe to call from any goroutine.
func (s *Scheduler) Enqueue(customerID uint32, deactivate bool) {
	select {
	case s.commands <- scheduleCmd{customerID: customerID, deactivate: deactivate}:
	case <-s.stopped:
	}
}

// Run drives the scheduler's single-threaded event loop until ctx is
// cancelled. Must be called exactly once, in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-s.commands:
			s.schedule(cmd.customerID, cmd.deactivate)
			armed = s.rearm(timer, armed)

		case <-timerC(timer, armed):
			s.fire(ctx)
			armed = s.rearm(timer, false)
		}
	}
}

func timerC(t *time.Timer, armed bool) <-chan time.Time {
	if !armed {
		return nil
	}
	return t.C
}

func (s *Scheduler) schedule(customerID uint32, deactivate bool) {
	if existing, ok := s.pending[customerID]; ok {
		bucket := s.buckets[existing]
		delete(bucket, customerID)
		if len(bucket) == 0 {
			delete(s.buckets, existing)
		}
	}

	fireAt := time.Now().Add(s.debounce)
	if s.buckets[fireAt] == nil {
		s.buckets[fireAt] = make(map[uint32]bool)
	}
	s.buckets[fireAt][customerID] = deactivate
	s.pending[customerID] = fireAt
}

// rearm stops any previously armed timer and arms a new one for the
// earliest remaining bucket, if any.
func (s *Scheduler) rearm(timer *time.Timer, wasArmed bool) bool {
	if wasArmed {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	earliest, ok := s.earliestBucket()
	if !ok {
		return false
	}

	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
	return true
}

func (s *Scheduler) earliestBucket() (time.Time, bool) {
	var earliest time.Time
	found := false
	for t := range s.buckets {
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	return earliest, found
}

// fire pops every bucket with a fire-time at or before now, applying each
// entry's activate/deactivate decision (spec §4.6's onTimer).
func (s *Scheduler) fire(ctx context.Context) {
	now := time.Now()
	for t, bucket := range s.buckets {
		if t.After(now) {
			continue
		}
		for customerID, deactivate := range bucket {
			delete(s.pending, customerID)
			var err error
			if deactivate {
				err = s.fleet.Deactivate(ctx, customerID)
			} else {
				err = s.fleet.Activate(ctx, customerID)
			}
			if err != nil {
				s.log.Error("deferred: fleet action failed", zap.Uint32("customer_id", customerID), zap.Bool("deactivate", deactivate), zap.Error(err))
			}
		}
		delete(s.buckets, t)
	}
}
